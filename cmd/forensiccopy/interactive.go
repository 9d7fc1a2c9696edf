package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sqweek/dialog"

	"forensiccopy"
)

// isGUIAvailable reports whether a native folder picker has a display
// session (X11/Wayland) to draw into.
func isGUIAvailable() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// guiDirectoryPicker opens a native directory dialog, recovering from any
// panic the underlying GTK/Cocoa binding raises when no toolkit is present.
func guiDirectoryPicker(title string) (path string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	picked, err := dialog.Directory().Title(title).Browse()
	if err != nil {
		return "", false
	}
	info, statErr := os.Stat(picked)
	if statErr != nil || !info.IsDir() {
		return "", false
	}
	return picked, true
}

func promptForDirectory(label string) (string, error) {
	if isGUIAvailable() {
		if path, ok := guiDirectoryPicker(label); ok {
			return path, nil
		}
		color.New(color.FgYellow).Println("  GUI picker unavailable, falling back to a text prompt...")
	}
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			info, err := os.Stat(input)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("not a valid directory")
			}
			return nil
		},
	}
	result, err := prompt.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\nInterrupted. Exiting cleanly.")
		os.Exit(130)
	}
	return result, err
}

// runInteractivePrompt walks the operator through source selection,
// destination, and structure preservation when no CLI arguments were given,
// preferring the native picker and falling back to text prompts.
func runInteractivePrompt() (selections []string, destDir string, preserveStructure bool, err error) {
	color.New(color.FgCyan, color.Bold).Println("forensiccopy — interactive evidence ingest")

	srcDir, err := promptForDirectory("Source folder to ingest from")
	if err != nil {
		return nil, "", false, fmt.Errorf("source prompt failed: %w", err)
	}
	destDir, err = promptForDirectory("Destination evidence root")
	if err != nil {
		return nil, "", false, fmt.Errorf("destination prompt failed: %w", err)
	}

	structureSelect := promptui.Select{
		Label: "Preserve source directory structure under the destination?",
		Items: []string{"Yes, preserve structure", "No, flatten into the destination root"},
	}
	_, choice, err := structureSelect.Run()
	if err == promptui.ErrInterrupt {
		color.New(color.FgRed, color.Bold).Println("\nInterrupted. Exiting cleanly.")
		os.Exit(130)
	} else if err != nil {
		return nil, "", false, fmt.Errorf("structure prompt failed: %w", err)
	}

	return []string{srcDir}, destDir, choice == "Yes, preserve structure", nil
}

// promptSameDriveDecision backs Options.SameDrivePolicy == Ask: asked once
// per same-filesystem item, it lets an operator choose copy-vs-move
// interactively instead of the engine silently defaulting to always-copy.
func promptSameDriveDecision(item forensiccopy.PlanItem) (forensiccopy.SameDrivePolicy, error) {
	sel := promptui.Select{
		Label: fmt.Sprintf("%s is on the same drive as the destination — copy or move?", item.Source),
		Items: []string{"Copy", "Move"},
	}
	_, choice, err := sel.Run()
	if err != nil {
		return forensiccopy.AlwaysCopy, err
	}
	if choice == "Move" {
		return forensiccopy.AlwaysMove, nil
	}
	return forensiccopy.AlwaysCopy, nil
}
