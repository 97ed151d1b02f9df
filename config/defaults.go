package config

const (
	EnvDevelopment = "DEVELOPMENT"
	EnvProduction  = "PRODUCTION"
)

// ViewEngineHTML is the only view engine type the initializer knows how to build.
const ViewEngineHTML = "html"

// LogFormatStructured selects the structured (httplog) request logger instead of a format line.
const LogFormatStructured = "structured"

// Defaults holds every fallback value the initializer uses when an option or environment value
// is missing or malformed. It is passed explicitly rather than read from package state.
type Defaults struct {
	NodeEnv            string
	Port               int
	ViewEngine         string
	LogFormat          string
	ResponseTimeHeader string
	MethodOverrideKey  string
	BodyLimit          int64
}

// StandardDefaults returns the defaults used by [bootstrap.Global].
func StandardDefaults() Defaults {
	return Defaults{
		NodeEnv:            EnvProduction,
		Port:               3000,
		ViewEngine:         ViewEngineHTML,
		LogFormat:          ":date :remote-addr :method :status :url",
		ResponseTimeHeader: "X-Response-Time",
		MethodOverrideKey:  "_method",
		BodyLimit:          100 * 1024, //nolint:mnd
	}
}
