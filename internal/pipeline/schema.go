package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aura-notes/backend/internal/models"
)

// ActionItemSchema is the JSON Schema of one action item, embedded verbatim in the extraction prompt.
const ActionItemSchema = `{
  "title": "ActionItem",
  "type": "object",
  "properties": {
    "text": {"type": "string", "minLength": 1, "description": "What has to be done."},
    "owner": {"type": "string", "description": "Person responsible, only if stated."},
    "due_date": {"type": "string", "description": "Deadline as stated in the meeting, only if stated."},
    "priority": {"type": "string", "description": "Priority, only if stated."}
  },
  "required": ["text"]
}`

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type actionItemDoc struct {
	Text     *string `json:"text" validate:"required"`
	Owner    *string `json:"owner"`
	DueDate  *string `json:"due_date"`
	Priority *string `json:"priority"`
}

type summaryDoc struct {
	Agenda    *[]string `json:"agenda" validate:"required"`
	Decisions *[]string `json:"decisions" validate:"required"`
	Risks     *[]string `json:"risks" validate:"required"`
}

// ParseActionItems parses raw generator output as a JSON array of action items and validates
// every element. It returns a *ParseError for invalid JSON and a *SchemaValidationError for
// JSON of the wrong shape. The result is never nil on success.
func ParseActionItems(raw string) ([]models.ActionItem, error) {
	body, err := jsonBody(raw)
	if err != nil {
		return nil, err
	}
	if body[0] != '[' {
		return nil, &SchemaValidationError{Index: -1, Reason: "expected a JSON array of action items"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, &ParseError{Err: err}
	}

	items := make([]models.ActionItem, 0, len(elems))
	for i, elem := range elems {
		item, err := parseActionItem(i, elem)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseActionItem(index int, elem json.RawMessage) (models.ActionItem, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.ActionItem{}, &SchemaValidationError{Index: index, Reason: "must be an object"}
	}
	var doc actionItemDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return models.ActionItem{}, decodeSchemaError(index, err)
	}
	if doc.Text != nil && strings.TrimSpace(*doc.Text) == "" {
		doc.Text = nil
	}
	if err := validate.Struct(doc); err != nil {
		return models.ActionItem{}, validationSchemaError(index, err)
	}
	return models.ActionItem{
		Text:     strings.TrimSpace(*doc.Text),
		Owner:    optional(doc.Owner),
		DueDate:  optional(doc.DueDate),
		Priority: optional(doc.Priority),
	}, nil
}

// ParseSummary parses raw generator output as a summary object with exactly the keys
// agenda, decisions and risks. Blank entries are dropped.
func ParseSummary(raw string) (*models.Summary, error) {
	body, err := jsonBody(raw)
	if err != nil {
		return nil, err
	}
	if body[0] != '{' {
		return nil, &SchemaValidationError{Index: -1, Reason: "expected a JSON object"}
	}
	var doc summaryDoc
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, decodeSchemaError(-1, err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, validationSchemaError(-1, err)
	}
	return &models.Summary{
		Agenda:    compact(*doc.Agenda),
		Decisions: compact(*doc.Decisions),
		Risks:     compact(*doc.Risks),
	}, nil
}

// jsonBody strips Markdown code fences and checks the remainder is well-formed JSON.
func jsonBody(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, &ParseError{Err: errors.New("empty response")}
	}
	body := []byte(s)
	if !json.Valid(body) {
		var v any
		err := json.Unmarshal(body, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, &ParseError{Err: err}
	}
	return body, nil
}

func decodeSchemaError(index int, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return &SchemaValidationError{Index: index, Reason: "unexpected " + typeErr.Value}
		}
		return &SchemaValidationError{Index: index, Field: field, Reason: "must be " + typeName(typeErr.Type)}
	}
	if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return &SchemaValidationError{Index: index, Field: strings.Trim(name, `"`), Reason: "unknown field"}
	}
	return &SchemaValidationError{Index: index, Reason: err.Error()}
}

func validationSchemaError(index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		if fe.Tag() == "required" {
			reason = "is required"
		}
		return &SchemaValidationError{Index: index, Field: fe.Field(), Reason: reason}
	}
	return &SchemaValidationError{Index: index, Reason: err.Error()}
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Slice:
		return "an array"
	}
	return t.String()
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
