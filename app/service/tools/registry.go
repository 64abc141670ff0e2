package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// validate is shared: argument structs are small and the validator is
// concurrency-safe.
var validate = validator.New(validator.WithRequiredStructEnabled())

type RegisterArgs struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Item     string  `json:"item" validate:"required"`
	Category string  `json:"category,omitempty"`
	Method   string  `json:"method,omitempty"`
	Date     string  `json:"date,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

type EditArgs struct {
	RecordID    string `json:"record_id,omitempty"`
	Description string `json:"description,omitempty"`
	Field       string `json:"field" validate:"required,oneof=amount item category method notes date"`
	NewValue    string `json:"new_value" validate:"required"`
}

type DeleteArgs struct {
	RecordID    string `json:"record_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type ListArgs struct {
	Period   string `json:"period" validate:"required"`
	Category string `json:"category,omitempty"`
}

type VerifyArgs struct {
	Category string `json:"category" validate:"required"`
}

type ReportArgs struct {
	Period string `json:"period" validate:"required"`
}

// decodeArgs is the schema gate: unknown fields and type mismatches are
// rejected deterministically, then declared constraints are checked.
// A failure here means execution is never attempted.
func decodeArgs(raw json.RawMessage, into any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	if err := validate.Struct(into); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return fmt.Errorf("%w: campos inválidos o faltantes: %s",
				ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	return nil
}

// Definitions declares the typed action surface for the function-calling
// protocol. The reasoning model only ever sees these six tools.
func Definitions() []openai.Tool {
	return []openai.Tool{
		functionTool(ToolRegisterExpense,
			"Registra un nuevo gasto en el libro. Si no se conoce el método de pago, regístralo sin method: el sistema lo preguntará después.",
			map[string]jsonschema.Definition{
				"amount":   {Type: jsonschema.Number, Description: "Valor del gasto, mayor a 0"},
				"item":     {Type: jsonschema.String, Description: "Descripción del gasto (ej: Pizza, Taxi al aeropuerto)"},
				"category": {Type: jsonschema.String, Description: "Categoría (ej: Comida, Transporte, Ocio)"},
				"method":   {Type: jsonschema.String, Description: "Método de pago si el usuario lo mencionó (Efectivo, Tarjeta, Transferencia, Nequi, Daviplata)"},
				"date":     {Type: jsonschema.String, Description: "Expresión de fecha tal como la dijo el usuario: hoy, ayer, hace 3 días, el viernes, 2025-12-20"},
				"notes":    {Type: jsonschema.String, Description: "Notas adicionales"},
			},
			[]string{"amount", "item"},
		),
		functionTool(ToolEditExpense,
			"Edita un campo de un gasto existente. Sin record_id ni description se edita el último gasto registrado.",
			map[string]jsonschema.Definition{
				"record_id":   {Type: jsonschema.String, Description: "ID del gasto (UUID), opcional"},
				"description": {Type: jsonschema.String, Description: "Palabras con las que el usuario identifica el gasto (ej: la pizza, el taxi), opcional"},
				"field":       {Type: jsonschema.String, Enum: []string{"amount", "item", "category", "method", "notes", "date"}},
				"new_value":   {Type: jsonschema.String, Description: "Nuevo valor para el campo"},
			},
			[]string{"field", "new_value"},
		),
		functionTool(ToolDeleteExpense,
			"Elimina un gasto. Requiere que el usuario haya confirmado explícitamente la eliminación.",
			map[string]jsonschema.Definition{
				"record_id":   {Type: jsonschema.String, Description: "ID del gasto (UUID), opcional"},
				"description": {Type: jsonschema.String, Description: "Palabras con las que el usuario identifica el gasto (ej: la pizza), opcional"},
			},
			nil,
		),
		functionTool(ToolListExpenses,
			"Lista los gastos de un período con totales por categoría.",
			map[string]jsonschema.Definition{
				"period":   {Type: jsonschema.String, Description: "hoy, ayer, semana, mes, año, o una expresión como 'hace 3 días'"},
				"category": {Type: jsonschema.String, Description: "Filtrar por categoría, opcional"},
			},
			[]string{"period"},
		),
		functionTool(ToolVerifyBudget,
			"Consulta el presupuesto mensual de una categoría y cuánto queda.",
			map[string]jsonschema.Definition{
				"category": {Type: jsonschema.String, Description: "Categoría a verificar"},
			},
			[]string{"category"},
		),
		functionTool(ToolGenerateReport,
			"Genera un reporte de gastos por categoría para un período.",
			map[string]jsonschema.Definition{
				"period": {Type: jsonschema.String, Description: "hoy, semana, mes, año"},
			},
			[]string{"period"},
		),
	}
}

func functionTool(name, description string, props map[string]jsonschema.Definition, required []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: props,
				Required:   required,
			},
		},
	}
}
