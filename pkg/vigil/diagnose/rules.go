package diagnose

import "strings"

// Routing issue classifications.
const (
	// IssueReceiverNotReady: the downstream consumer for the target
	// has not finished initializing.
	IssueReceiverNotReady = "RECEIVER_NOT_READY"

	// IssueDispatcherNotReady: the upstream dispatcher for the target
	// has not finished initializing.
	IssueDispatcherNotReady = "DISPATCHER_NOT_READY"

	// IssueContextInvalidated: the host environment was torn down and
	// requires full re-initialization.
	IssueContextInvalidated = "CONTEXT_INVALIDATED"

	// IssueUnknown is the deliberate unknown-unknown bucket. Never
	// coerced into one of the known categories.
	IssueUnknown = "UNKNOWN_ROUTING_ERROR"
)

// RoutingDiagnosis is the analyzer's verdict on one routing failure.
type RoutingDiagnosis struct {
	Issue       string   `json:"issue"`
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// routingRule matches raw error text against one known failure class.
type routingRule struct {
	substr   string
	classify func(source, target string) RoutingDiagnosis
}

// classifyNoReceivingEnd handles the "no receiving end" family of
// failures; shared by the first two rules in routingRules.
func classifyNoReceivingEnd(source, target string) RoutingDiagnosis {
	if isConsumerTarget(target) {
		return RoutingDiagnosis{
			Issue:  IssueReceiverNotReady,
			Source: source,
			Target: target,
			Suggestions: []string{
				"the " + target + " consumer has not registered its listener yet",
				"delay dispatch until the consumer announces readiness",
				"verify the consumer is loaded on the page receiving the message",
			},
		}
	}
	return RoutingDiagnosis{
		Issue:  IssueDispatcherNotReady,
		Source: source,
		Target: target,
		Suggestions: []string{
			"the " + target + " dispatcher is not running yet",
			"wait for the dispatcher to finish startup before publishing",
			"check that the dispatcher was not unloaded by the host",
		},
	}
}

// routingRules is the fixed rule table, checked in order.
var routingRules = []routingRule{
	{
		substr:   "no receiving end",
		classify: classifyNoReceivingEnd,
	},
	{
		substr:   "receiving end does not exist",
		classify: classifyNoReceivingEnd,
	},
	{
		substr: "context invalidated",
		classify: func(source, target string) RoutingDiagnosis {
			return RoutingDiagnosis{
				Issue:  IssueContextInvalidated,
				Source: source,
				Target: target,
				Suggestions: []string{
					"the host environment was torn down while messages were in flight",
					"re-initialize all messaging before retrying",
					"discard any state captured before the teardown",
				},
			}
		},
	},
}

// consumerTargets name the downstream consumer class; everything else
// is treated as an upstream dispatcher.
var consumerTargets = []string{"content", "page", "tab", "renderer", "ui"}

func isConsumerTarget(target string) bool {
	lower := strings.ToLower(target)
	for _, t := range consumerTargets {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
