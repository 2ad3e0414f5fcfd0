package service

import (
	"errors"
	"strings"

	"github.com/rl1809/labstock/internal/core/domain"
)

const (
	scriptHostPrefix      = "https://script.google.com"
	deploymentSuffix      = "/exec"
	spreadsheetUIFragment = "docs.google.com/spreadsheets"
	shareEditorFragment   = "aistudio.google.com/apps/drive"
	minShareLinkLength    = 10
)

var (
	ErrEditorShareLink   = errors.New("share link points at the app editor, not the published app")
	ErrShareLinkTooShort = errors.New("share link is too short")
)

// ClassifyLink decides whether url is a usable sync target. Rules apply in
// order: blank, spreadsheet UI link, deployed script endpoint, anything else.
func ClassifyLink(url string) domain.LinkState {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return domain.LinkEmpty
	case strings.Contains(url, spreadsheetUIFragment):
		return domain.LinkSpreadsheetUI
	case strings.HasPrefix(url, scriptHostPrefix) && strings.HasSuffix(url, deploymentSuffix):
		return domain.LinkValidExec
	default:
		return domain.LinkMalformed
	}
}

// CanPull is the looser pull gate: a GET with a fixed action only needs the
// script host, not the deployment suffix.
func CanPull(url string) bool {
	url = strings.TrimSpace(url)
	return strings.HasPrefix(url, scriptHostPrefix) && ClassifyLink(url) != domain.LinkSpreadsheetUI
}

func CheckShareLink(url string) error {
	url = strings.TrimSpace(url)
	if strings.Contains(url, shareEditorFragment) {
		return ErrEditorShareLink
	}
	if len(url) < minShareLinkLength {
		return ErrShareLinkTooShort
	}
	return nil
}
