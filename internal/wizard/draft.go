package wizard

import "strings"

// Draft accumulates answers across steps until submission.
type Draft struct {
	fields map[string]string
}

// NewDraft returns an empty draft.
func NewDraft() *Draft {
	return &Draft{fields: map[string]string{}}
}

// Set records a value. Setting "" keeps the key so the field is sent empty.
func (d *Draft) Set(name, value string) {
	d.fields[name] = value
}

// Get returns the value for name, or "".
func (d *Draft) Get(name string) string {
	return d.fields[name]
}

// Fields returns a copy of every answer.
func (d *Draft) Fields() map[string]string {
	out := make(map[string]string, len(d.fields))
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}

// Missing lists the required fields of step that are blank.
func (d *Draft) Missing(step Step) []string {
	var missing []string
	for _, field := range step.Fields {
		if field.Required && strings.TrimSpace(d.fields[field.Name]) == "" {
			missing = append(missing, field.Name)
		}
	}
	return missing
}
