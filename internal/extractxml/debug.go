package extractxml

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
)

// DebugPrintXPath prints either the XML or the text of every node matched by
// an XPath expression. This backs the command's "-xpath" debug mode, used
// while authoring field specs against a real feed.
func DebugPrintXPath(w io.Writer, text, expr string, textOnly bool) error {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("parse xml: %w", err)
	}

	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return fmt.Errorf("xpath %q: %w", expr, err)
	}

	for _, n := range nodes {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(n.InnerText()))
		} else {
			fmt.Fprintln(w, n.OutputXML(true))
		}
		fmt.Fprintln(w)
	}
	return nil
}
