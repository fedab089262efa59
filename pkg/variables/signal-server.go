package variables

import (
	"log"
	"os"
	"strconv"
)

const (
	HTTP_PORT_DEFAULT = "8080"
	HTTP_PORT_NAME    = "HTTP_PORT"

	// Consecutive failed sends to one participant before the relay
	// schedules its disconnect. 0 keeps the peer and only logs.
	SIGNAL_EVICT_AFTER_FAILURES         = "SIGNAL_EVICT_AFTER_FAILURES"
	SIGNAL_EVICT_AFTER_FAILURES_DEFAULT = "0"

	SIGNAL_INSIGHTS_DELAY_MS         = "SIGNAL_INSIGHTS_DELAY_MS"
	SIGNAL_INSIGHTS_DELAY_MS_DEFAULT = "200"

	SIGNAL_WRITE_TIMEOUT_MS         = "SIGNAL_WRITE_TIMEOUT_MS"
	SIGNAL_WRITE_TIMEOUT_MS_DEFAULT = "1000"
)

func Env(variableName, defaultValue string) string {
	if variable := os.Getenv(variableName); variable != "" {
		log.Printf("[%s]: %s", variableName, variable)
		return variable
	}
	log.Printf("[%s_DEFAULT]: %s", variableName, defaultValue)
	return defaultValue
}

func ParseInt(variable string) (int, error) {
	return strconv.Atoi(variable)
}
