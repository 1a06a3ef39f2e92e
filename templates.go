package main

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/sableauth/interactd/engine"
)

var (
	//go:embed web/templates
	templates embed.FS

	loginTemplate = template.Must(template.ParseFS(templates, "web/templates/login.tmpl.html"))
)

type loginPageData struct {
	UID    string
	Params engine.Params
	Error  string
}

func renderLogin(w http.ResponseWriter, data loginPageData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return loginTemplate.Execute(w, data)
}
