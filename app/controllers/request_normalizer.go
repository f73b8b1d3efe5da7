package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Field aliases accepted from clients. The first name is canonical.
var (
	aliasAmount         = []string{"amount", "monto"}
	aliasCurrency       = []string{"currency", "moneda"}
	aliasReference      = []string{"reference", "reference_text", "referencia"}
	aliasProofURL       = []string{"proof_url", "proofUrl", "comprobante_url", "comprobante"}
	aliasPlanCode       = []string{"plan_code", "planCode", "plan"}
	aliasSubscriptionID = []string{"subscription_id", "subscriptionId", "suscripcion_id"}
	aliasReason         = []string{"reason", "motivo"}
	aliasNote           = []string{"note", "nota"}
	aliasOwnerID        = []string{"owner_id", "ownerId", "propietario_id"}
)

// requestFields reads a JSON or form body once and resolves aliased keys.
type requestFields struct {
	json map[string]interface{}
	c    *fiber.Ctx
}

func readFields(c *fiber.Ctx) (*requestFields, error) {
	f := &requestFields{c: c}
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 || !strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentType)), "json") {
		return f, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&f.json); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return f, nil
}

// get returns the first non-empty value among the aliases.
func (f *requestFields) get(aliases []string) string {
	for _, key := range aliases {
		if f.json != nil {
			if v, ok := f.json[key]; ok && v != nil {
				if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
					return s
				}
			}
			continue
		}
		if s := strings.TrimSpace(f.c.FormValue(key)); s != "" {
			return s
		}
	}
	return ""
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
