package agent

import (
	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
)

const (
	PayerAppName = "x402relay-payer"
	PayerUserID  = "paystabl_agent"

	RequesterAppName = "x402relay-requester"
	RequesterUserID  = "requester_agent"

	Version = "1.0.0"
)

var (
	inputModes  = []string{"text/plain", "application/json"}
	outputModes = []string{"text/plain"}
)

// PayerCard describes the agent that pays x402 challenges for others.
func PayerCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "PayStabl Agent",
		Description:        "An agent that executes payments for AI agents (x402 URLs) and returns the provider body.",
		URL:                url,
		Version:            Version,
		DefaultInputModes:  inputModes,
		DefaultOutputModes: outputModes,
		Capabilities:       a2a.Capabilities{Streaming: true},
		Skills: []a2a.Skill{
			{
				ID:          tools.PayToolName,
				Name:        "Pay x402 Endpoint",
				Description: "Fetch a paywalled URL, pay the HTTP 402 challenge once and return the unlocked body.",
				Tags:        []string{"payments", "x402", "stablecoin", "agents"},
				Examples:    []string{"pay402_and_fetch {'url':'http://localhost:9000/vin/TESTVIN'}"},
			},
			{
				ID:          "payment_history",
				Name:        "Payment History",
				Description: "List the most recent payments made by this agent.",
				Tags:        []string{"payments", "audit"},
				Examples:    []string{`payment_history {"limit": 5}`},
			},
		},
	}
}

// RequesterCard describes the agent that fetches paywalled resources and
// relays payment challenges.
func RequesterCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "Vehicle Report Agent",
		Description:        "An agent that fetches paywalled resources, delegating HTTP 402 payments to a payment agent.",
		URL:                url,
		Version:            Version,
		DefaultInputModes:  inputModes,
		DefaultOutputModes: outputModes,
		Capabilities:       a2a.Capabilities{Streaming: true},
		Skills: []a2a.Skill{
			{
				ID:          "vehicle_report",
				Name:        "Vehicle Report Fetcher",
				Description: "Fetch the vehicle history report for the car with the given VIN.",
				Tags:        []string{"vin", "report", "vehicle"},
				Examples: []string{
					"What does the report say about 1HGCM82633A004352?",
					"Can you fetch the vehicle report for this VIN?",
				},
			},
			{
				ID:          "fetch_paywalled",
				Name:        "Fetch Paywalled Resource",
				Description: "Fetch any URL, paying through the payment agent when it answers HTTP 402.",
				Tags:        []string{"x402", "fetch"},
				Examples:    []string{`fetch_paywalled {"url": "http://localhost:9000/vin/TESTVIN"}`},
			},
		},
	}
}
