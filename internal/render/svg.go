package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// WriteSVG serializes f as a standalone SVG document of the given size.
func WriteSVG(w io.Writer, f Frame, width, height float64) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(width), num(height), num(width), num(height))
	fmt.Fprintf(&b, `  <rect width="100%%" height="100%%" fill="#fff"/>`+"\n")

	for _, l := range f.Lines {
		fmt.Fprintf(&b, `  <line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s"/>`+"\n",
			num(l.X1), num(l.Y1), num(l.X2), num(l.Y2), attr(l.Stroke))
	}
	for _, c := range f.Circles {
		fmt.Fprintf(&b, `  <circle id="%s" cx="%s" cy="%s" r="%s" fill="%s" stroke="%s"/>`+"\n",
			attr(c.ID), num(c.CX), num(c.CY), num(c.R), attr(c.Fill), attr(c.Stroke))
	}
	for _, l := range f.Labels {
		fmt.Fprintf(&b, `  <text x="%s" y="%s" fill="%s" font-size="%s" font-family="sans-serif" text-anchor="%s" dominant-baseline="%s">%s</text>`+"\n",
			num(l.X), num(l.Y), attr(l.Fill), num(l.Size), anchor(l.Align), baseline(l.Baseline), attr(l.Text))
	}
	b.WriteString("</svg>\n")

	_, err := w.Write(b.Bytes())
	return err
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func attr(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func anchor(align string) string {
	switch align {
	case "left", "start":
		return "start"
	case "right", "end":
		return "end"
	default:
		return "middle"
	}
}

func baseline(b string) string {
	switch b {
	case BaselineMiddle:
		return "central"
	case BaselineBottom:
		return "text-after-edge"
	default:
		return "auto"
	}
}
