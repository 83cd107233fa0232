package render

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Command, verilen komut şablonunu sağlanan veri ile işler.
// Sprig fonksiyonları kullanılabilir; eksik anahtarlar zero değer döner.
func Command(content string, data interface{}) (string, error) {
	tmpl, err := template.New("saucier").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
