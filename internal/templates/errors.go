package templates

// TemplateError reports a template that failed to parse, execute or write
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	return "template error: " + e.Message + ": " + e.Cause.Error()
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}
