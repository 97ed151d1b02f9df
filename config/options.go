package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Options configures which middleware [bootstrap.Global] attaches to an application.
// The zero value matches the behaviour of passing no options at all.
type Options struct {
	// Logging enables the request logger, but only in the DEVELOPMENT environment.
	Logging bool `mapstructure:"logging"`
	// Views configures the view engine. Nil means no views.
	Views *ViewOptions `mapstructure:"views"`
	// ResponseTime adds a header with the time spent handling the request. When switched on
	// without a value, the header is called X-Response-Time.
	ResponseTime Toggle `mapstructure:"response_time"`
	TrustProxy   bool   `mapstructure:"trust_proxy"`
	// PoweredBy replaces the X-Powered-By header. When empty the header is removed entirely.
	PoweredBy      string         `mapstructure:"powered_by"`
	ParseCookies   Optional[bool] `mapstructure:"parse_cookies"`
	BodyJSON       Optional[bool] `mapstructure:"body_json"`
	BodyURLEncoded Optional[bool] `mapstructure:"body_urlencoded"`
	// UptimeRoute registers a health check on this path when set.
	UptimeRoute string `mapstructure:"uptime_route"`

	// CookieSecret enables signed cookies. It is used as the HMAC key for gorilla/securecookie.
	CookieSecret string `mapstructure:"cookie_secret"`
	// BodyLimit is the maximum size in bytes of a parsed request body.
	BodyLimit int64 `mapstructure:"body_limit"`
	// LogFormat is the request log line format, or "structured" for httplog.
	LogFormat    string         `mapstructure:"log_format"`
	MetricsRoute string         `mapstructure:"metrics_route"`
	Static       *StaticOptions `mapstructure:"static"`
}

type ViewOptions struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type StaticOptions struct {
	// URL prefix, e.g. "/static"
	Prefix string `mapstructure:"prefix"`
	// Directory on disk
	Path string `mapstructure:"path"`
}

// Optional is a value that can be left unset, in which case callers pick their own default.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional that is set to v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool {
	return o.set
}

// Or returns the value if it was set and fallback otherwise.
func (o Optional[T]) Or(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.value
}

func (o *Optional[T]) decode(data any) error {
	if data == nil {
		*o = Optional[T]{}
		return nil
	}
	var err error
	switch dst := any(&o.value).(type) {
	case *bool:
		*dst, err = cast.ToBoolE(data)
	case *string:
		*dst, err = cast.ToStringE(data)
	case *int:
		*dst, err = cast.ToIntE(data)
	case *int64:
		*dst, err = cast.ToInt64E(data)
	default:
		v, ok := data.(T)
		if !ok {
			return fmt.Errorf("cannot decode %T into %T", data, o.value)
		}
		o.value = v
	}
	if err != nil {
		return err
	}
	o.set = true
	return nil
}

// Toggle is an option that is either off, on, or on with an explicit value.
// It decodes from a boolean as well as from a string.
type Toggle struct {
	enabled bool
	value   string
}

// On returns an enabled Toggle without a value.
func On() Toggle {
	return Toggle{enabled: true}
}

// OnWith returns an enabled Toggle carrying value.
func OnWith(value string) Toggle {
	return Toggle{enabled: true, value: value}
}

func (t Toggle) Enabled() bool {
	return t.enabled
}

// ValueOr returns the explicit value, or fallback if the toggle was switched on without one.
func (t Toggle) ValueOr(fallback string) string {
	if t.value == "" {
		return fallback
	}
	return t.value
}

func (t *Toggle) decode(data any) error {
	switch v := data.(type) {
	case nil:
		*t = Toggle{}
	case bool:
		*t = Toggle{enabled: v}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "0", "off", "no":
			*t = Toggle{}
		case "true", "1", "on", "yes":
			*t = On()
		default:
			*t = OnWith(v)
		}
	default:
		enabled, err := cast.ToBoolE(data)
		if err != nil {
			return fmt.Errorf("cannot decode %T into a toggle: %w", data, err)
		}
		*t = Toggle{enabled: enabled}
	}
	return nil
}

type decoder interface {
	decode(data any) error
}

// OptionHook is a mapstructure decode hook for [Optional] and [Toggle] values. It also turns a
// boolean false into the empty string for plain string options, so "powered_by = false"
// disables the header instead of setting it to "0".
func OptionHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to.Kind() == reflect.String && from.Kind() == reflect.Bool {
			if b, _ := data.(bool); !b {
				return "", nil
			}
			return "true", nil
		}

		target := reflect.New(to)
		d, ok := target.Interface().(decoder)
		if !ok {
			return data, nil
		}
		if err := d.decode(data); err != nil {
			return nil, err
		}
		return target.Elem().Interface(), nil
	}
}
