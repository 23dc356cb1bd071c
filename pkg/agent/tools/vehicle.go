package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/surajcodesml/a2a/pkg/paywall"
)

const vinLength = 17

var ErrNoVIN = errors.New("vehicle_report: no VIN in query")

// ExtractVIN returns the first whitespace-separated 17-character
// alphanumeric word of query, upper-cased. Punctuation around a word is
// ignored.
func ExtractVIN(query string) (string, bool) {
	for _, word := range strings.Fields(query) {
		word = strings.TrimFunc(word, unicode.IsPunct)
		if len(word) == vinLength && isAlnum(word) {
			return strings.ToUpper(word), true
		}
	}
	return "", false
}

func isAlnum(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// VehicleReportTool fetches the paid vehicle history report for the VIN
// found in a free-text query.
type VehicleReportTool struct {
	Fetcher Fetcher
	// URLTemplate holds a {vin} placeholder.
	URLTemplate string
	CallerToken string
}

type vehicleInput struct {
	Query string `json:"query"`
}

func (t *VehicleReportTool) Definition() Definition {
	return Definition{
		Name:        "vehicle_report",
		Description: "Fetch the vehicle history report for the VIN mentioned in the query.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Free text containing a 17-character VIN"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *VehicleReportTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[vehicleInput](input, "vehicle_report")
	if err != nil {
		return "", err
	}
	vin, ok := ExtractVIN(params.Query)
	if !ok {
		return "", fmt.Errorf("%w: No valid VIN found in the query. Please provide a 17-character VIN number", ErrNoVIN)
	}

	target := strings.ReplaceAll(t.URLTemplate, "{vin}", url.PathEscape(vin))
	body, err := t.Fetcher.Fetch(ctx, paywall.FetchRequest{URL: target, CallerToken: t.CallerToken})
	if err != nil {
		return "", fmt.Errorf("fetching vehicle report for VIN %s: %w", vin, err)
	}
	return body, nil
}
