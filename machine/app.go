package machine

import (
	"context"
	"encoding/json"

	"github.com/bazelment/yoloswe/flx/mux"
)

// App-control calls shared by the daemon (apps it launched) and flutter run
// (its single app).

// RestartParams are the params of app.restart.
type RestartParams struct {
	AppID       string `json:"appId"`
	Reason      string `json:"reason,omitempty"`
	FullRestart bool   `json:"fullRestart"`
	Pause       bool   `json:"pause,omitempty"`
}

// RestartApp sends app.restart. FullRestart=false is a hot reload.
func RestartApp(ctx context.Context, m *mux.Mux[uint64], params RestartParams) (RestartResult, error) {
	return mux.CallAs[RestartResult](ctx, m, MethodAppRestart, params)
}

type appParams struct {
	AppID string `json:"appId"`
}

// DetachApp sends app.detach.
func DetachApp(ctx context.Context, m *mux.Mux[uint64], appID string) (bool, error) {
	return mux.CallAs[bool](ctx, m, MethodAppDetach, appParams{AppID: appID})
}

// StopApp sends app.stop.
func StopApp(ctx context.Context, m *mux.Mux[uint64], appID string) (bool, error) {
	return mux.CallAs[bool](ctx, m, MethodAppStop, appParams{AppID: appID})
}

type extensionParams struct {
	Params     map[string]any `json:"params,omitempty"`
	AppID      string         `json:"appId"`
	MethodName string         `json:"methodName"`
}

// CallServiceExtension sends app.callServiceExtension.
func CallServiceExtension(ctx context.Context, m *mux.Mux[uint64], appID, method string, params map[string]any) (json.RawMessage, error) {
	return m.Call(ctx, MethodAppCallServiceExtension, extensionParams{AppID: appID, MethodName: method, Params: params})
}
