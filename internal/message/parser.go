package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Parser decodes and validates inbound frames
type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Envelope decodes the type tag of a frame
func (p *Parser) Envelope(msg []byte) (Envelope, error) {
	var env Envelope
	if err := p.decode(msg, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// RecognizeRequest decodes a recognize_image frame
func (p *Parser) RecognizeRequest(msg []byte) (RecognizeRequest, error) {
	var req RecognizeRequest
	if err := p.decode(msg, &req); err != nil {
		return RecognizeRequest{}, err
	}
	return req, nil
}

func (p *Parser) decode(msg []byte, target interface{}) error {
	if err := json.Unmarshal(msg, target); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	if err := p.validate.Struct(target); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// formatValidationErrors reports the first failing field
func formatValidationErrors(errs validator.ValidationErrors) error {
	err := errs[0]
	switch err.Tag() {
	case "required":
		return fmt.Errorf("validation failed: '%s' is required", err.Field())
	default:
		return fmt.Errorf("validation failed: '%s' is invalid", err.Field())
	}
}
