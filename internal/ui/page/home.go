// Package page holds the server-rendered HTML. Markup lives in .templ
// files; run `templ generate` after editing them.
package page

import "fmt"

func percent(pct float64) string { return fmt.Sprintf("%.2f%%", pct) }

func progressValue(p float64) string { return fmt.Sprintf("%.4f", p) }

func perMinute(rate float64) string { return fmt.Sprintf("%.2f/min", rate) }
