package mailer

import (
	"bytes"
	"html/template"

	"acro-shop/model"
)

var (
	orderTmpl = template.Must(template.New("order").Parse(`<h1>Dziękujemy za zamówienie!</h1>
<p>Numer zamówienia: <strong>{{.OrderNumber}}</strong></p>
<table>
{{range .Items}}<tr><td>{{.Name}}{{if .Size}} ({{.Size}}){{end}}</td><td>{{.Quantity}} x {{.Price.StringFixed 2}} zł</td></tr>
{{end}}</table>
<p>Wysyłka: {{.ShippingCost.StringFixed 2}} zł</p>
<p><strong>Razem: {{.Total.StringFixed 2}} zł</strong></p>
<p>Adres dostawy: {{.Address.Name}}, {{.Address.Street}}, {{.Address.PostalCode}} {{.Address.City}}</p>
`))

	paymentTmpl = template.Must(template.New("payment").Parse(`<h1>Płatność przyjęta</h1>
<p>Otrzymaliśmy płatność za zamówienie <strong>{{.OrderNumber}}</strong> na kwotę {{.Total.StringFixed 2}} zł.</p>
<p>Powiadomimy Cię, gdy paczka zostanie wysłana.</p>
`))

	contactTmpl = template.Must(template.New("contact").Parse(`<h2>Nowa wiadomość z formularza kontaktowego</h2>
<p><strong>Od:</strong> {{.Name}} &lt;{{.Email}}&gt;</p>
<p><strong>Temat:</strong> {{.Subject}}</p>
<p>{{.Message}}</p>
`))
)

// Contact is a message submitted through the shop's contact form.
type Contact struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func OrderConfirmation(o model.Order) (Message, error) {
	html, err := render(orderTmpl, o)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{o.Email},
		Subject: "Potwierdzenie zamówienia " + o.OrderNumber,
		HTML:    html,
	}, nil
}

func PaymentConfirmation(o model.Order) (Message, error) {
	html, err := render(paymentTmpl, o)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{o.Email},
		Subject: "Płatność za zamówienie " + o.OrderNumber + " przyjęta",
		HTML:    html,
	}, nil
}

// ContactMessage addresses c to inbox with Reply-To set to the sender.
func ContactMessage(inbox string, c Contact) (Message, error) {
	html, err := render(contactTmpl, c)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{inbox},
		Subject: "[Kontakt] " + c.Subject,
		HTML:    html,
		ReplyTo: c.Email,
	}, nil
}
