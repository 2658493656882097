// internal/model/customer.go
package model

// Recipient is a single addressee of a send. Phone must be normalized
// before the recipient is included in a campaign.
type Recipient struct {
	Phone    string            `json:"phone"`
	Name     string            `json:"name,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Callback string            `json:"callback,omitempty"`
}

// Value resolves a personalization field. name and callback live on the
// struct, everything else in Fields.
func (r Recipient) Value(field string) string {
	switch field {
	case "name":
		return r.Name
	case "callback":
		return r.Callback
	case "phone":
		return r.Phone
	}
	if r.Fields == nil {
		return ""
	}
	return r.Fields[field]
}
