// Package page splices resolved subscription data into the static page.
package page

import (
	"bytes"
	"encoding/json"
)

// DefaultPlaceholder is the marker left in the built page for the data script.
const DefaultPlaceholder = "<!-- PHP_INITIAL_DATA_PLACEHOLDER -->"

// GlobalName is the browser variable the embedded data is assigned to.
const GlobalName = "window.__INITIAL_DATA__"

// InitialData is what the page reads on load instead of calling the API.
type InitialData struct {
	User  json.RawMessage `json:"user"`
	Links []string        `json:"links"`
}

// Script renders the inline script assigning data to GlobalName. If data can't
// be serialised the script assigns null so the page still loads.
func Script(data InitialData) string {
	if data.Links == nil {
		data.Links = []string{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("null")
	}

	var b bytes.Buffer
	b.WriteString("<script>\ntry {\n    ")
	b.WriteString(GlobalName)
	b.WriteString(" = ")
	b.Write(payload)
	b.WriteString(";\n} catch (e) {\n    console.warn(\"Failed to parse initial data:\", e);\n    ")
	b.WriteString(GlobalName)
	b.WriteString(" = null;\n}\n</script>")
	return b.String()
}

// Embed replaces the first placeholder in tmpl with the data script. A
// template without the placeholder is returned as is.
func Embed(tmpl []byte, placeholder string, data InitialData) []byte {
	if placeholder == "" || !bytes.Contains(tmpl, []byte(placeholder)) {
		return tmpl
	}
	return bytes.Replace(tmpl, []byte(placeholder), []byte(Script(data)), 1)
}
