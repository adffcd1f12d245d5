package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/session"
)

type connectArgs struct {
	Address string `json:"address"`
}

type setPowerArgs struct {
	PowerLevel *int `json:"powerLevel"`
}

type clearTagArgs struct {
	EPC string `json:"epc"`
}

func invalidArgument(format string, args ...any) error {
	return &MethodError{Code: string(session.KindInvalidArgument), Msg: fmt.Sprintf(format, args...)}
}

// decodeArgs unmarshals the arguments object into dst. Missing arguments
// decode as an empty object.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidArgument("malformed arguments: %v", err)
	}
	return nil
}

func (s *Server) registerMethods() {
	handlers := map[string]MethodFunc{
		MethodGetAvailableDevices:      s.startScan,
		MethodStartScan:                s.startScan,
		MethodStopScan:                 s.stopScan,
		MethodConnect:                  s.connect,
		MethodDisconnect:               s.disconnect,
		MethodGetPower:                 s.getPower,
		MethodSetPower:                 s.setPower,
		MethodGetAllowedPowerLevels:    s.allowedPowerLevels,
		MethodGetBatteryLevel:          s.getBatteryLevel,
		MethodStartTagInventory:        s.startTagInventory,
		MethodStopTagInventory:         s.stopTagInventory,
		MethodClearAllTags:             s.clearAllTags,
		MethodClearTag:                 s.clearTag,
		MethodCheckConnectivity:        s.checkConnectivity,
		MethodStopCheckingConnectivity: s.stopCheckingConnectivity,
		MethodGetPeripherals:           s.peripherals,
		MethodGetTags:                  s.tags,
		MethodGetState:                 s.state,
		MethodGetBluetoothState:        s.bluetoothState,
	}
	for name, fn := range handlers {
		if err := s.registry.Handle(name, fn); err != nil {
			s.logger.WithError(err).Error("Failed to register method")
		}
	}
}

func (s *Server) startScan(ctx context.Context, c *client, _ json.RawMessage) (any, error) {
	s.claim(StreamDevices, c)
	err := s.session.StartScan(ctx, func(p reader.Peripheral) {
		c.push(StreamDevices, p)
	})
	if err != nil {
		s.disown(StreamDevices, c)
		return nil, err
	}
	return true, nil
}

func (s *Server) stopScan(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	s.disown(StreamDevices, nil)
	return s.session.StopScan(ctx)
}

func (s *Server) connect(ctx context.Context, _ *client, raw json.RawMessage) (any, error) {
	var args connectArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Address == "" {
		return nil, invalidArgument("address is required")
	}
	return s.session.Connect(ctx, args.Address)
}

func (s *Server) disconnect(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	ok, err := s.session.Disconnect(ctx)
	if err == nil {
		s.disown(StreamConnectivity, nil)
	}
	return ok, err
}

func (s *Server) getPower(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	return s.session.GetPower(ctx)
}

func (s *Server) setPower(ctx context.Context, _ *client, raw json.RawMessage) (any, error) {
	var args setPowerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.PowerLevel == nil {
		return nil, invalidArgument("powerLevel is required")
	}
	return s.session.SetPower(ctx, *args.PowerLevel)
}

func (s *Server) allowedPowerLevels(context.Context, *client, json.RawMessage) (any, error) {
	return s.session.AllowedPowerLevels(), nil
}

func (s *Server) getBatteryLevel(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	return s.session.GetBatteryLevel(ctx)
}

func (s *Server) startTagInventory(ctx context.Context, c *client, _ json.RawMessage) (any, error) {
	s.claim(StreamTags, c)
	err := s.session.StartTagInventory(ctx, func(t session.Tag) {
		c.push(StreamTags, t)
	})
	if err != nil {
		s.disown(StreamTags, c)
		return nil, err
	}
	return true, nil
}

func (s *Server) stopTagInventory(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	s.disown(StreamTags, nil)
	return s.session.StopTagInventory(ctx)
}

func (s *Server) clearAllTags(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	return s.session.ClearAllTags(ctx)
}

func (s *Server) clearTag(ctx context.Context, _ *client, raw json.RawMessage) (any, error) {
	var args clearTagArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.EPC == "" {
		return nil, invalidArgument("epc is required")
	}
	return s.session.ClearTag(ctx, args.EPC)
}

func (s *Server) checkConnectivity(ctx context.Context, c *client, _ json.RawMessage) (any, error) {
	s.claim(StreamConnectivity, c)
	err := s.session.StartConnectivityPoll(ctx, func(connected bool) {
		c.push(StreamConnectivity, connected)
	})
	if err != nil {
		s.disown(StreamConnectivity, c)
		return nil, err
	}
	return true, nil
}

func (s *Server) stopCheckingConnectivity(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	s.disown(StreamConnectivity, nil)
	if err := s.session.StopConnectivityPoll(ctx); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) peripherals(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	devs, err := s.session.Peripherals(ctx)
	if err != nil {
		return nil, err
	}
	if devs == nil {
		devs = []reader.Peripheral{}
	}
	return devs, nil
}

func (s *Server) tags(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	tags, err := s.session.Tags(ctx)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []session.Tag{}
	}
	return tags, nil
}

func (s *Server) state(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	return s.session.State(ctx)
}

func (s *Server) bluetoothState(ctx context.Context, _ *client, _ json.RawMessage) (any, error) {
	enabled, err := s.session.BluetoothEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"enabled": enabled}, nil
}
