package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/tools"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

// Server exposes the expense tools over MCP stdio, so desktop agents can
// drive the same dispatcher the bot uses. All invocations run under the
// configured MCP identity and pass the same validation and policy gates.
type Server struct {
	cfg        *config.Config
	dispatcher *tools.Dispatcher
	mcpServer  *server.MCPServer
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:        do.MustInvoke[*config.Config](di),
		dispatcher: do.MustInvoke[*tools.Dispatcher](di),
	}

	s.mcpServer = server.NewMCPServer(
		"gastobot",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(tools.ToolRegisterExpense,
		mcp.WithDescription("Registra un nuevo gasto en el libro"),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Valor del gasto, mayor a 0")),
		mcp.WithString("item", mcp.Required(), mcp.Description("Descripción del gasto")),
		mcp.WithString("category", mcp.Description("Categoría (Comida, Transporte, ...)")),
		mcp.WithString("method", mcp.Description("Método de pago (Efectivo, Tarjeta, Transferencia, Nequi, Daviplata)")),
		mcp.WithString("date", mcp.Description("Expresión de fecha: hoy, ayer, hace 3 días, 2025-12-20")),
		mcp.WithString("notes", mcp.Description("Notas adicionales")),
	), s.handler(tools.ToolRegisterExpense))

	s.mcpServer.AddTool(mcp.NewTool(tools.ToolEditExpense,
		mcp.WithDescription("Edita un campo de un gasto existente"),
		mcp.WithString("record_id", mcp.Description("ID del gasto, opcional: sin él se edita el último")),
		mcp.WithString("description", mcp.Description("Palabras que identifican el gasto, opcional")),
		mcp.WithString("field", mcp.Required(), mcp.Description("amount, item, category, method, notes o date")),
		mcp.WithString("new_value", mcp.Required(), mcp.Description("Nuevo valor")),
	), s.handler(tools.ToolEditExpense))

	s.mcpServer.AddTool(mcp.NewTool(tools.ToolDeleteExpense,
		mcp.WithDescription("Elimina un gasto previa confirmación"),
		mcp.WithString("record_id", mcp.Description("ID del gasto, opcional")),
		mcp.WithString("description", mcp.Description("Palabras que identifican el gasto, opcional")),
	), s.handler(tools.ToolDeleteExpense))

	s.mcpServer.AddTool(mcp.NewTool(tools.ToolListExpenses,
		mcp.WithDescription("Lista los gastos de un período"),
		mcp.WithString("period", mcp.Required(), mcp.Description("hoy, ayer, semana, mes, año")),
		mcp.WithString("category", mcp.Description("Filtrar por categoría")),
	), s.handler(tools.ToolListExpenses))

	s.mcpServer.AddTool(mcp.NewTool(tools.ToolVerifyBudget,
		mcp.WithDescription("Consulta el presupuesto mensual de una categoría"),
		mcp.WithString("category", mcp.Required(), mcp.Description("Categoría a verificar")),
	), s.handler(tools.ToolVerifyBudget))

	s.mcpServer.AddTool(mcp.NewTool(tools.ToolGenerateReport,
		mcp.WithDescription("Genera un reporte de gastos por categoría"),
		mcp.WithString("period", mcp.Required(), mcp.Description("hoy, semana, mes, año")),
	), s.handler(tools.ToolGenerateReport))
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		outcome := s.dispatcher.Dispatch(ctx, tools.DispatchContext{
			UserID:    s.cfg.MCP.User,
			Utterance: "",
			Now:       time.Now(),
		}, tools.Invocation{
			Name:      name,
			Arguments: args,
		})

		if outcome.Failed() {
			if outcome.Text != "" {
				return mcp.NewToolResultError(outcome.Text), nil
			}

			return mcp.NewToolResultError(outcome.Err.Error()), nil
		}

		return mcp.NewToolResultText(outcome.Text), nil
	}
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}
