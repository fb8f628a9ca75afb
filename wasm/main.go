//go:build js && wasm

// Package main is the WASM entry point for lazymilktea. It exposes the
// four service commands to JavaScript as promise-returning globals and
// forwards parse progress events to a host-provided dispatch callback.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"syscall/js"

	"github.com/mochibug/lazymilktea/config"
	"github.com/mochibug/lazymilktea/service"
)

const version = "lazymilktea-wasm/0.1.0"

var (
	svc     *service.Service
	current string // fingerprint of the most recently parsed report
)

var errMissingPath = errors.New("wasm: missing path argument")
var errNoReportParsed = errors.New("wasm: no report parsed yet")

func main() {
	svc = service.New(loadConfig())

	js.Global().Set("parse_bugreport_streaming", js.FuncOf(parseBugreportStreaming))
	js.Global().Set("get_logcat_stats", js.FuncOf(getLogcatStats))
	js.Global().Set("query_logcat_v2", js.FuncOf(queryLogcatV2))
	js.Global().Set("jump_to_time", js.FuncOf(jumpToTime))
	js.Global().Set("lazymilktea_version", js.FuncOf(getVersion))
	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return version
}

// loadConfig reads an optional lazymilktea_config_json global the host
// may set before the WASM module starts running; a JSON field present
// there overlays config.Default() the same way config.Load's YAML
// overlay does for the CLI, so the cache ceiling, posting-sampling,
// progress cadence, and message size cap are reachable in-browser too.
func loadConfig() config.Config {
	cfg := config.Default()
	raw := js.Global().Get("lazymilktea_config_json")
	if raw.Type() != js.TypeString || raw.String() == "" {
		return cfg
	}
	if err := json.Unmarshal([]byte(raw.String()), &cfg); err != nil {
		return config.Default()
	}
	return cfg
}

// jsonArg decodes args[i], a JSON-encoded string, into v. A missing,
// null, undefined, or empty argument leaves v at its zero value.
func jsonArg(args []js.Value, i int, v interface{}) error {
	if i >= len(args) || args[i].IsNull() || args[i].IsUndefined() {
		return nil
	}
	s := args[i].String()
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// emit forwards a named progress event to lazymilktea_dispatch, a global
// function the host registers before calling parse_bugreport_streaming.
// Silently a no-op if the host never registered one.
func emit(channel string, v interface{}) {
	fn := js.Global().Get("lazymilktea_dispatch")
	if fn.Type() != js.TypeFunction {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fn.Invoke(channel, string(b))
}

// newPromise runs fn on its own goroutine and resolves with its JSON-
// encoded result, or rejects with {"error": message}. Every exported
// command returns one of these so a blocking index build or disk scan
// never stalls the JS event loop.
func newPromise(fn func() (interface{}, error)) interface{} {
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			result, err := fn()
			if err != nil {
				reject.Invoke(map[string]interface{}{"error": err.Error()})
				return
			}
			b, merr := json.Marshal(result)
			if merr != nil {
				reject.Invoke(map[string]interface{}{"error": merr.Error()})
				return
			}
			resolve.Invoke(string(b))
		}()
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func parseBugreportStreaming(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return newPromise(func() (interface{}, error) { return nil, errMissingPath })
	}
	path := args[0].String()

	return newPromise(func() (interface{}, error) {
		summary, progress, err := svc.ParseBugreportStreaming(context.Background(), path)
		for p := range progress {
			emit("parse://progress", p)
		}
		if err != nil {
			return nil, err
		}
		if fp, ferr := service.FingerprintFor(path); ferr == nil {
			current = fp
		}
		return summary, nil
	})
}

func getLogcatStats(this js.Value, args []js.Value) interface{} {
	var filters service.LogFilters
	if err := jsonArg(args, 0, &filters); err != nil {
		return newPromise(func() (interface{}, error) { return nil, err })
	}
	return newPromise(func() (interface{}, error) {
		if current == "" {
			return nil, errNoReportParsed
		}
		return svc.GetLogcatStats(context.Background(), current, filters)
	})
}

func queryLogcatV2(this js.Value, args []js.Value) interface{} {
	var filters service.LogFilters
	if err := jsonArg(args, 0, &filters); err != nil {
		return newPromise(func() (interface{}, error) { return nil, err })
	}
	var cursor *service.QueryCursor
	if err := jsonArg(args, 1, &cursor); err != nil {
		return newPromise(func() (interface{}, error) { return nil, err })
	}
	limit := 0
	if len(args) > 2 && args[2].Type() == js.TypeNumber {
		limit = args[2].Int()
	}
	direction := "forward"
	if len(args) > 3 && args[3].Type() == js.TypeString {
		direction = args[3].String()
	}

	return newPromise(func() (interface{}, error) {
		if current == "" {
			return nil, errNoReportParsed
		}
		return svc.QueryLogcatV2(context.Background(), current, filters, cursor, limit, direction)
	})
}

func jumpToTime(this js.Value, args []js.Value) interface{} {
	var filters service.LogFilters
	if err := jsonArg(args, 0, &filters); err != nil {
		return newPromise(func() (interface{}, error) { return nil, err })
	}
	targetTime := ""
	if len(args) > 1 && args[1].Type() == js.TypeString {
		targetTime = args[1].String()
	}
	limit := 0
	if len(args) > 2 && args[2].Type() == js.TypeNumber {
		limit = args[2].Int()
	}

	return newPromise(func() (interface{}, error) {
		if current == "" {
			return nil, errNoReportParsed
		}
		return svc.JumpToTime(context.Background(), current, filters, targetTime, limit)
	})
}
