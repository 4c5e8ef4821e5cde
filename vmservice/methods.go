package vmservice

import (
	"context"
	"encoding/json"
)

type isolateParams struct {
	IsolateID string `json:"isolateId"`
}

type streamParams struct {
	StreamID string `json:"streamId"`
}

// GetVersion returns the protocol version.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	return call[Version](ctx, c, "getVersion", nil)
}

// GetVM describes the VM and lists its isolates.
func (c *Client) GetVM(ctx context.Context) (VM, error) {
	return call[VM](ctx, c, "getVM", nil)
}

// GetIsolate describes one isolate.
func (c *Client) GetIsolate(ctx context.Context, isolateID string) (Isolate, error) {
	return call[Isolate](ctx, c, "getIsolate", isolateParams{IsolateID: isolateID})
}

// StreamListen enables notifications for a stream.
func (c *Client) StreamListen(ctx context.Context, streamID string) error {
	_, err := call[Success](ctx, c, "streamListen", streamParams{StreamID: streamID})
	return err
}

// StreamCancel disables notifications for a stream.
func (c *Client) StreamCancel(ctx context.Context, streamID string) error {
	_, err := call[Success](ctx, c, "streamCancel", streamParams{StreamID: streamID})
	return err
}

// Pause interrupts a running isolate.
func (c *Client) Pause(ctx context.Context, isolateID string) error {
	_, err := call[Success](ctx, c, "pause", isolateParams{IsolateID: isolateID})
	return err
}

// Resume resumes a paused isolate. step is "" or one of the Step constants.
func (c *Client) Resume(ctx context.Context, isolateID, step string) error {
	params := map[string]any{"isolateId": isolateID}
	if step != "" {
		params["step"] = step
	}
	_, err := call[Success](ctx, c, "resume", params)
	return err
}

// AddBreakpoint adds a breakpoint at a line of a loaded script. column <= 0
// is omitted.
func (c *Client) AddBreakpoint(ctx context.Context, isolateID, scriptID string, line, column int) (Breakpoint, error) {
	params := map[string]any{"isolateId": isolateID, "scriptId": scriptID, "line": line}
	if column > 0 {
		params["column"] = column
	}
	return call[Breakpoint](ctx, c, "addBreakpoint", params)
}

// AddBreakpointWithScriptURI adds a breakpoint by script uri, which may not
// be loaded yet.
func (c *Client) AddBreakpointWithScriptURI(ctx context.Context, isolateID, scriptURI string, line, column int) (Breakpoint, error) {
	params := map[string]any{"isolateId": isolateID, "scriptUri": scriptURI, "line": line}
	if column > 0 {
		params["column"] = column
	}
	return call[Breakpoint](ctx, c, "addBreakpointWithScriptUri", params)
}

// AddBreakpointAtEntry adds a breakpoint at the entry of a function.
func (c *Client) AddBreakpointAtEntry(ctx context.Context, isolateID, functionID string) (Breakpoint, error) {
	return call[Breakpoint](ctx, c, "addBreakpointAtEntry", map[string]any{"isolateId": isolateID, "functionId": functionID})
}

// RemoveBreakpoint removes a breakpoint.
func (c *Client) RemoveBreakpoint(ctx context.Context, isolateID, breakpointID string) error {
	_, err := call[Success](ctx, c, "removeBreakpoint", map[string]any{"isolateId": isolateID, "breakpointId": breakpointID})
	return err
}

// SetExceptionPauseMode sets when the isolate pauses on exceptions.
func (c *Client) SetExceptionPauseMode(ctx context.Context, isolateID, mode string) error {
	_, err := call[Success](ctx, c, "setExceptionPauseMode", map[string]any{"isolateId": isolateID, "mode": mode})
	return err
}

// GetStack returns the stack of a paused isolate. limit <= 0 is unlimited.
func (c *Client) GetStack(ctx context.Context, isolateID string, limit int) (Stack, error) {
	params := map[string]any{"isolateId": isolateID}
	if limit > 0 {
		params["limit"] = limit
	}
	return call[Stack](ctx, c, "getStack", params)
}

// GetObject returns an object. Objects nest arbitrarily and are returned
// undecoded.
func (c *Client) GetObject(ctx context.Context, isolateID, objectID string, offset, count int) (json.RawMessage, error) {
	params := map[string]any{"isolateId": isolateID, "objectId": objectID}
	if offset > 0 {
		params["offset"] = offset
	}
	if count > 0 {
		params["count"] = count
	}
	return c.mux.Call(ctx, "getObject", params)
}

// Evaluate evaluates expression in the context of targetID (a library,
// class or instance).
func (c *Client) Evaluate(ctx context.Context, isolateID, targetID, expression string) (json.RawMessage, error) {
	return c.mux.Call(ctx, "evaluate", map[string]any{
		"isolateId":  isolateID,
		"targetId":   targetID,
		"expression": expression,
	})
}

// EvaluateInFrame evaluates expression in a stack frame of a paused isolate.
func (c *Client) EvaluateInFrame(ctx context.Context, isolateID string, frameIndex int, expression string) (json.RawMessage, error) {
	return c.mux.Call(ctx, "evaluateInFrame", map[string]any{
		"isolateId":  isolateID,
		"frameIndex": frameIndex,
		"expression": expression,
	})
}

// GetScripts lists the scripts loaded in an isolate.
func (c *Client) GetScripts(ctx context.Context, isolateID string) (ScriptList, error) {
	return call[ScriptList](ctx, c, "getScripts", isolateParams{IsolateID: isolateID})
}

// GetSourceReport returns coverage or reachability reports. scriptID may be
// empty for the whole isolate.
func (c *Client) GetSourceReport(ctx context.Context, isolateID string, reports []string, scriptID string) (json.RawMessage, error) {
	params := map[string]any{"isolateId": isolateID, "reports": reports}
	if scriptID != "" {
		params["scriptId"] = scriptID
	}
	return c.mux.Call(ctx, "getSourceReport", params)
}

// GetAllocationProfile returns per-class heap statistics.
func (c *Client) GetAllocationProfile(ctx context.Context, isolateID string, reset, gc bool) (AllocationProfile, error) {
	params := map[string]any{"isolateId": isolateID}
	if reset {
		params["reset"] = true
	}
	if gc {
		params["gc"] = true
	}
	return call[AllocationProfile](ctx, c, "getAllocationProfile", params)
}

// GetMemoryUsage returns heap usage.
func (c *Client) GetMemoryUsage(ctx context.Context, isolateID string) (MemoryUsage, error) {
	return call[MemoryUsage](ctx, c, "getMemoryUsage", isolateParams{IsolateID: isolateID})
}

// GetCPUSamples returns CPU profiler samples in a time window.
func (c *Client) GetCPUSamples(ctx context.Context, isolateID string, timeOriginMicros, timeExtentMicros int64) (json.RawMessage, error) {
	return c.mux.Call(ctx, "getCpuSamples", map[string]any{
		"isolateId":        isolateID,
		"timeOriginMicros": timeOriginMicros,
		"timeExtentMicros": timeExtentMicros,
	})
}

// GetInstances returns live instances of a class.
func (c *Client) GetInstances(ctx context.Context, isolateID, classID string, limit int) (InstanceSet, error) {
	return call[InstanceSet](ctx, c, "getInstances", map[string]any{
		"isolateId": isolateID,
		"objectId":  classID,
		"limit":     limit,
	})
}

// GetRetainingPath returns the path from a GC root to targetID.
func (c *Client) GetRetainingPath(ctx context.Context, isolateID, targetID string, limit int) (json.RawMessage, error) {
	return c.mux.Call(ctx, "getRetainingPath", map[string]any{
		"isolateId": isolateID,
		"targetId":  targetID,
		"limit":     limit,
	})
}

// GetInboundReferences returns objects referencing targetID.
func (c *Client) GetInboundReferences(ctx context.Context, isolateID, targetID string, limit int) (json.RawMessage, error) {
	return c.mux.Call(ctx, "getInboundReferences", map[string]any{
		"isolateId": isolateID,
		"targetId":  targetID,
		"limit":     limit,
	})
}

// GetFlagList lists VM flags.
func (c *Client) GetFlagList(ctx context.Context) (FlagList, error) {
	return call[FlagList](ctx, c, "getFlagList", nil)
}

// SetFlag sets a VM flag.
func (c *Client) SetFlag(ctx context.Context, name, value string) error {
	_, err := call[Success](ctx, c, "setFlag", map[string]any{"name": name, "value": value})
	return err
}

// SetName renames an isolate.
func (c *Client) SetName(ctx context.Context, isolateID, name string) error {
	_, err := call[Success](ctx, c, "setName", map[string]any{"isolateId": isolateID, "name": name})
	return err
}

// SetVMName renames the VM.
func (c *Client) SetVMName(ctx context.Context, name string) error {
	_, err := call[Success](ctx, c, "setVMName", map[string]any{"name": name})
	return err
}

// ReloadSources reloads an isolate's sources.
func (c *Client) ReloadSources(ctx context.Context, isolateID string, force bool) (ReloadReport, error) {
	params := map[string]any{"isolateId": isolateID}
	if force {
		params["force"] = true
	}
	return call[ReloadReport](ctx, c, "reloadSources", params)
}

// Kill terminates an isolate.
func (c *Client) Kill(ctx context.Context, isolateID string) error {
	_, err := call[Success](ctx, c, "kill", isolateParams{IsolateID: isolateID})
	return err
}

// CallServiceExtension invokes a service extension registered by the app,
// e.g. "ext.flutter.debugPaint". An empty isolateID is omitted.
func (c *Client) CallServiceExtension(ctx context.Context, method, isolateID string, params map[string]any) (json.RawMessage, error) {
	p := make(map[string]any, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	if isolateID != "" {
		p["isolateId"] = isolateID
	}
	return c.mux.Call(ctx, method, p)
}
