package cli

import (
	"fmt"
	"strings"

	survey "github.com/AlecAivazis/survey/v2"

	"github.com/Bibi40k/subchunker/internal/plugins"
)

type gapAction int

const (
	gapOpenPage gapAction = iota
	gapInstalled
	gapOpenFolder
	gapSkip
	gapAbort
)

const (
	labelOpenPage   = "Open download page"
	labelInstalled  = "I installed it, check again"
	labelOpenFolder = "Open plugins folder"
	labelSkip       = "Skip this plugin"
	labelAbort      = "Abort"
)

// gapChoices lists the prompt options for g. Required plugins cannot be
// skipped.
func gapChoices(g plugins.Gap) []string {
	out := []string{labelOpenPage, labelInstalled, labelOpenFolder}
	if !g.Plugin.Required {
		out = append(out, labelSkip)
	}
	return append(out, labelAbort)
}

func gapActionFor(label string) gapAction {
	switch label {
	case labelOpenPage:
		return gapOpenPage
	case labelInstalled:
		return gapInstalled
	case labelOpenFolder:
		return gapOpenFolder
	case labelSkip:
		return gapSkip
	default:
		return gapAbort
	}
}

var askGapAction = promptGapAction

func promptGapAction(g plugins.Gap, dir string) (gapAction, error) {
	kind := "optional"
	if g.Plugin.Required {
		kind = "required"
	}
	fmt.Printf("\n\033[33m⚠ %s (%s) is not installed\033[0m\n", g.Plugin.Name, kind)
	fmt.Printf("  Download: \033[36m%s\033[0m\n", g.URL)
	fmt.Printf("  Install into: \033[36m%s\033[0m\n", dir)

	var choice string
	prompt := &survey.Select{
		Message: "Select:",
		Options: gapChoices(g),
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return gapAbort, err
	}
	drainStdin()
	return gapActionFor(choice), nil
}

var confirm = promptYesNo

func promptYesNo(message string) (bool, error) {
	fmt.Printf("\n\033[33m⚠ %s\033[0m [y/N]: ", message)
	raw, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	return s == "y" || s == "yes", nil
}
