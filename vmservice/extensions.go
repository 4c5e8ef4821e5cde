package vmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Toggle is a boolean Flutter service extension.
type Toggle string

const (
	ToggleDebugPaint         Toggle = "ext.flutter.debugPaint"
	TogglePerformanceOverlay Toggle = "ext.flutter.showPerformanceOverlay"
	ToggleRepaintRainbow     Toggle = "ext.flutter.repaintRainbow"
	ToggleDebugBanner        Toggle = "ext.flutter.debugAllowBanner"
	ToggleInspectorOverlay   Toggle = "ext.flutter.inspector.show"
)

const (
	extListViews          = "_flutter.listViews"
	extDisplayRefreshRate = "_flutter.getDisplayRefreshRate"
	extTimeDilation       = "ext.flutter.timeDilation"
	extPlatformOverride   = "ext.flutter.platformOverride"
	extBrightnessOverride = "ext.flutter.brightnessOverride"
	extRootSummaryTree    = "ext.flutter.inspector.getRootWidgetSummaryTree"
	extDetailsSubtree     = "ext.flutter.inspector.getDetailsSubtree"
	extDisposeGroup       = "ext.flutter.inspector.disposeGroup"
)

// SlowAnimationFactor is the time dilation SlowAnimations applies.
const SlowAnimationFactor = 5.0

// Extensions is the Flutter framework's service extension surface. It shares
// the client's connection and id space.
type Extensions struct {
	c *Client
}

// Extensions returns the Flutter extension facade.
func (c *Client) Extensions() *Extensions {
	return &Extensions{c: c}
}

// FlutterView is one rendering surface of the app.
type FlutterView struct {
	Isolate *IsolateRef `json:"isolate,omitempty"`
	ID      string      `json:"id"`
	Type    string      `json:"type,omitempty"`
}

// ListViews lists the app's views and the isolates running them.
func (e *Extensions) ListViews(ctx context.Context) ([]FlutterView, error) {
	res, err := call[struct {
		Views []FlutterView `json:"views"`
	}](ctx, e.c, extListViews, nil)
	if err != nil {
		return nil, err
	}
	return res.Views, nil
}

// ErrNoIsolate is returned by UIIsolate when the app has no usable isolate.
var ErrNoIsolate = errors.New("no UI isolate")

// UIIsolate returns the id of the isolate running the first view, falling
// back to the first non-system isolate of the VM.
func (e *Extensions) UIIsolate(ctx context.Context) (string, error) {
	if views, err := e.ListViews(ctx); err == nil {
		for _, v := range views {
			if v.Isolate != nil && v.Isolate.ID != "" {
				return v.Isolate.ID, nil
			}
		}
	}
	vm, err := e.c.GetVM(ctx)
	if err != nil {
		return "", err
	}
	for _, iso := range vm.Isolates {
		if !iso.IsSystemIsolate {
			return iso.ID, nil
		}
	}
	return "", ErrNoIsolate
}

// DisplayRefreshRate returns the refresh rate of a view in frames per
// second.
func (e *Extensions) DisplayRefreshRate(ctx context.Context, viewID string) (float64, error) {
	res, err := call[struct {
		FPS float64 `json:"fps"`
	}](ctx, e.c, extDisplayRefreshRate, map[string]any{"viewId": viewID})
	if err != nil {
		return 0, err
	}
	return res.FPS, nil
}

// Get reads the current value of a toggle.
func (e *Extensions) Get(ctx context.Context, isolateID string, t Toggle) (bool, error) {
	return e.toggle(ctx, isolateID, t, nil)
}

// Set sets a toggle and returns the value the app reports back.
func (e *Extensions) Set(ctx context.Context, isolateID string, t Toggle, enabled bool) (bool, error) {
	return e.toggle(ctx, isolateID, t, map[string]any{"enabled": strconv.FormatBool(enabled)})
}

// Flip inverts a toggle and returns the new value.
func (e *Extensions) Flip(ctx context.Context, isolateID string, t Toggle) (bool, error) {
	cur, err := e.Get(ctx, isolateID, t)
	if err != nil {
		return false, err
	}
	return e.Set(ctx, isolateID, t, !cur)
}

func (e *Extensions) toggle(ctx context.Context, isolateID string, t Toggle, params map[string]any) (bool, error) {
	raw, err := e.c.CallServiceExtension(ctx, string(t), isolateID, params)
	if err != nil {
		return false, err
	}
	var res struct {
		Enabled string `json:"enabled"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("%s: unexpected result %s: %w", t, raw, err)
	}
	return strconv.ParseBool(res.Enabled)
}

// DebugPaint shows layout guidelines.
func (e *Extensions) DebugPaint(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	return e.Set(ctx, isolateID, ToggleDebugPaint, enabled)
}

// PerformanceOverlay shows the frame timing overlay.
func (e *Extensions) PerformanceOverlay(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	return e.Set(ctx, isolateID, TogglePerformanceOverlay, enabled)
}

// RepaintRainbow rotates colors on repainted layers.
func (e *Extensions) RepaintRainbow(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	return e.Set(ctx, isolateID, ToggleRepaintRainbow, enabled)
}

// DebugBanner shows the DEBUG banner.
func (e *Extensions) DebugBanner(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	return e.Set(ctx, isolateID, ToggleDebugBanner, enabled)
}

// InspectorOverlay enables widget selection mode on the device.
func (e *Extensions) InspectorOverlay(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	return e.Set(ctx, isolateID, ToggleInspectorOverlay, enabled)
}

// TimeDilation returns the current animation time dilation.
func (e *Extensions) TimeDilation(ctx context.Context, isolateID string) (float64, error) {
	return e.timeDilation(ctx, isolateID, nil)
}

// SlowAnimations slows animations by SlowAnimationFactor when enabled and
// reports whether they are slowed afterwards.
func (e *Extensions) SlowAnimations(ctx context.Context, isolateID string, enabled bool) (bool, error) {
	factor := 1.0
	if enabled {
		factor = SlowAnimationFactor
	}
	v, err := e.timeDilation(ctx, isolateID, map[string]any{
		"timeDilation": strconv.FormatFloat(factor, 'f', 1, 64),
	})
	if err != nil {
		return false, err
	}
	return v != 1.0, nil
}

func (e *Extensions) timeDilation(ctx context.Context, isolateID string, params map[string]any) (float64, error) {
	raw, err := e.c.CallServiceExtension(ctx, extTimeDilation, isolateID, params)
	if err != nil {
		return 0, err
	}
	var res struct {
		TimeDilation string `json:"timeDilation"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("%s: unexpected result %s: %w", extTimeDilation, raw, err)
	}
	v, err := strconv.ParseFloat(res.TimeDilation, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", extTimeDilation, err)
	}
	return v, nil
}

// PlatformOverride makes the app render as another platform ("iOS",
// "android", "fuchsia", "macOS", ...). An empty value reads the current one.
func (e *Extensions) PlatformOverride(ctx context.Context, isolateID, platform string) (string, error) {
	return e.valueExtension(ctx, extPlatformOverride, isolateID, platform)
}

// BrightnessOverride forces "Brightness.light" or "Brightness.dark". An empty
// value reads the current one.
func (e *Extensions) BrightnessOverride(ctx context.Context, isolateID, brightness string) (string, error) {
	return e.valueExtension(ctx, extBrightnessOverride, isolateID, brightness)
}

func (e *Extensions) valueExtension(ctx context.Context, method, isolateID, value string) (string, error) {
	var params map[string]any
	if value != "" {
		params = map[string]any{"value": value}
	}
	raw, err := e.c.CallServiceExtension(ctx, method, isolateID, params)
	if err != nil {
		return "", err
	}
	var res struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("%s: unexpected result %s: %w", method, raw, err)
	}
	return res.Value, nil
}

// RootWidgetSummaryTree returns the widget tree created by the app's own
// code. References in the result stay valid until DisposeGroup(group).
func (e *Extensions) RootWidgetSummaryTree(ctx context.Context, isolateID, group string) (*DiagnosticsNode, error) {
	return e.inspectorTree(ctx, extRootSummaryTree, isolateID, map[string]any{"objectGroup": group})
}

// DetailsSubtree returns the full subtree below the node with valueID, down
// to depth levels.
func (e *Extensions) DetailsSubtree(ctx context.Context, isolateID, group, valueID string, depth int) (*DiagnosticsNode, error) {
	return e.inspectorTree(ctx, extDetailsSubtree, isolateID, map[string]any{
		"objectGroup":  group,
		"arg":          valueID,
		"subtreeDepth": strconv.Itoa(depth),
	})
}

// DisposeGroup releases the object references held for group.
func (e *Extensions) DisposeGroup(ctx context.Context, isolateID, group string) error {
	_, err := e.c.CallServiceExtension(ctx, extDisposeGroup, isolateID, map[string]any{"objectGroup": group})
	return err
}

func (e *Extensions) inspectorTree(ctx context.Context, method, isolateID string, params map[string]any) (*DiagnosticsNode, error) {
	raw, err := e.c.CallServiceExtension(ctx, method, isolateID, params)
	if err != nil {
		return nil, err
	}
	var res struct {
		Result *DiagnosticsNode `json:"result"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%s: failed to decode widget tree: %w", method, err)
	}
	return res.Result, nil
}
