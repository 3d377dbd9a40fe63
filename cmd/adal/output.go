// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/adal"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxTokenWidth is how much of a token the table shows.
const maxTokenWidth = 40

func printToken(w io.Writer, format string, token adal.Token) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(token)
	case "table", "":
		renderTokenTable(w, token)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderTokenTable(w io.Writer, token adal.Token) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})

	rows := []table.Row{
		{"Token type", token.TokenType},
		{"Access token", truncate(token.AccessToken)},
		{"Expires on", token.ExpiresOn.Local().Format(time.RFC1123)},
		{"Resource", token.Resource},
		{"Authority", token.Authority},
		{"Client id", token.ClientID},
	}
	if token.UserID != "" {
		rows = append(rows, table.Row{"User id", token.UserID})
	}
	if token.Claims.TenantID != "" {
		rows = append(rows, table.Row{"Tenant id", token.Claims.TenantID})
	}
	if token.RefreshToken != "" {
		rows = append(rows, table.Row{"Refresh token", "yes"}, table.Row{"Multi resource", token.IsMRRT})
	}
	for _, r := range rows {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(r[0]), r[1]})
	}
	t.Render()
}

func truncate(s string) string {
	if len(s) <= maxTokenWidth {
		return s
	}
	return s[:maxTokenWidth-3] + "..."
}
