package triggers

import (
	"strings"

	"github.com/Triglit/flowgraph/internal/graph"
)

// Trigger types understood by the default translators.
const (
	TypeEvent    = "event"
	TypeSchedule = "schedule"
	TypeWebhook  = "webhook"
	TypeQueue    = "queue"
)

// Translator maps a node's visual config to the config stored remotely.
type Translator interface {
	Translate(nodeType string, visual map[string]interface{}) map[string]interface{}
}

// TranslateFunc converts the visual config of one trigger type.
type TranslateFunc func(visual map[string]interface{}) map[string]interface{}

// Translators is a registry of per-type translate functions. It is built
// once at startup and shared read-only.
type Translators struct {
	funcs    map[string]TranslateFunc
	defaults map[string]map[string]interface{}
}

var _ Translator = (*Translators)(nil)

// NewTranslators returns a registry with the built-in trigger types.
func NewTranslators() *Translators {
	t := &Translators{
		funcs:    make(map[string]TranslateFunc),
		defaults: make(map[string]map[string]interface{}),
	}
	t.Register(TypeEvent, translateEvent, map[string]interface{}{
		"eventType": "",
		"filters":   map[string]interface{}{},
	})
	t.Register(TypeSchedule, translateSchedule, map[string]interface{}{
		"cronExpression": "0 0 * * *",
		"timezone":       "UTC",
	})
	t.Register(TypeWebhook, translateWebhook, map[string]interface{}{
		"path":        "",
		"method":      "POST",
		"requireAuth": true,
	})
	t.Register(TypeQueue, translateQueue, map[string]interface{}{
		"queueName":  "",
		"maxRetries": float64(3),
		"priority":   "normal",
	})
	return t
}

// Register adds or replaces the translator for a trigger type. defaults is
// the visual config given to newly added nodes of that type.
func (t *Translators) Register(triggerType string, fn TranslateFunc, defaults map[string]interface{}) {
	t.funcs[triggerType] = fn
	t.defaults[triggerType] = defaults
}

// Has reports whether the trigger type is registered.
func (t *Translators) Has(triggerType string) bool {
	_, ok := t.funcs[graph.TriggerType(triggerType)]
	return ok
}

// DefaultConfig returns a copy of the default visual config for a trigger
// type, or an empty config.
func (t *Translators) DefaultConfig(triggerType string) map[string]interface{} {
	if d, ok := t.defaults[graph.TriggerType(triggerType)]; ok {
		return graph.CopyConfig(d)
	}
	return map[string]interface{}{}
}

// Translate strips editor-only keys and applies the type's translator.
// Unregistered types pass the remaining visual config through.
func (t *Translators) Translate(nodeType string, visual map[string]interface{}) map[string]interface{} {
	config := stripReserved(visual)
	fn, ok := t.funcs[graph.TriggerType(nodeType)]
	if !ok {
		return config
	}
	out := fn(config)
	addCommon(out, config)
	return out
}

func stripReserved(visual map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(visual))
	for k, v := range graph.CopyConfig(visual) {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

func translateEvent(c map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	if truthy(c["eventType"]) {
		filters, ok := c["filters"].(map[string]interface{})
		if !ok {
			filters = map[string]interface{}{}
		}
		out["filters"] = filters
	}
	return out
}

func translateSchedule(c map[string]interface{}) map[string]interface{} {
	schedule := map[string]interface{}{}
	if truthy(c["cronExpression"]) {
		schedule["cron"] = c["cronExpression"]
	}
	if truthy(c["timezone"]) {
		schedule["timezone"] = c["timezone"]
	}
	return map[string]interface{}{"scheduleConfig": schedule}
}

// Webhook path, method and auth are editor-only.
func translateWebhook(map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"webhookConfig": nil}
}

func translateQueue(c map[string]interface{}) map[string]interface{} {
	name, _ := c["queueName"].(string)
	queue := map[string]interface{}{"queueName": name}
	if truthy(c["consumerGroup"]) {
		queue["consumerGroup"] = c["consumerGroup"]
	}
	if truthy(c["batchSize"]) {
		queue["batchSize"] = c["batchSize"]
	}
	return map[string]interface{}{"queueConfig": queue}
}

var commonFields = []string{"entityIdResolver", "eventKeyGenerator", "rateLimit", "timeoutMs", "retryPolicy"}

func addCommon(out, c map[string]interface{}) {
	for _, f := range commonFields {
		if truthy(c[f]) {
			out[f] = c[f]
		}
	}
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}
