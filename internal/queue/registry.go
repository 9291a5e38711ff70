package queue

import (
	"fmt"
	"slices"
)

// Queue names. Each names the table <name>_queue.
const (
	Discovery = "discovery"
	Research  = "research"
	Deepening = "deepening"
	Draft     = "draft"
	Delivery  = "delivery"
	Reply     = "reply"
)

var queueNames = []string{Discovery, Research, Deepening, Draft, Delivery, Reply}

// Names returns every queue in pipeline order.
func Names() []string {
	return append([]string(nil), queueNames...)
}

// Valid reports whether name is a registered queue.
func Valid(name string) bool {
	return slices.Contains(queueNames, name)
}

// tableFor maps a queue name onto its table. Only registry names reach SQL text.
func tableFor(name string) (string, error) {
	if !Valid(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return name + "_queue", nil
}
