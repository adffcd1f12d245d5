package session

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/reader"
)

// loopHandler is the reader.Handler installed on the driver. It only
// forwards callbacks to the loop; callbacks after Close are dropped.
type loopHandler struct {
	m *Mediator
}

func (h *loopHandler) OnResponse(op reader.Opcode, payload string) {
	h.m.post(func() { h.m.handleResponse(op, payload) })
}

func (h *loopHandler) OnPeripheralDiscovered(p reader.Peripheral) {
	h.m.post(func() { h.m.handlePeripheral(p) })
}

func (h *loopHandler) OnTagObserved(t reader.TagObservation) {
	h.m.post(func() { h.m.handleTag(t) })
}

func (h *loopHandler) OnConnected() {
	h.m.post(h.m.handleConnected)
}

func (h *loopHandler) OnConnectFailed(message string) {
	h.m.post(func() { h.m.handleConnectFailed(message) })
}

func (h *loopHandler) OnDisconnected() {
	h.m.post(h.m.handleDisconnected)
}

// handleResponse decodes one (opcode, payload) callback and routes it.
func (m *Mediator) handleResponse(op reader.Opcode, payload string) {
	log := m.logger.WithFields(logrus.Fields{"opcode": op, "payload": payload})

	switch r := reader.Decode(op, payload).(type) {
	case reader.PowerSet:
		m.resolve(ClassSetPower, outcome{flag: r.OK})
	case reader.PowerLevel:
		m.resolve(ClassGetPower, numericOutcome(r.Value, r.Err, "power level not available"))
	case reader.BatteryLevel:
		m.resolve(ClassGetBattery, numericOutcome(r.Value, r.Err, "battery level not available"))
	case reader.Info:
		log.WithField("label", r.Label).Info(r.Text)
	case reader.Temperature:
		if !r.OK {
			log.Warn("Temperature read failed")
			return
		}
		log.WithField("celsius", r.Celsius).Info("Reader temperature")
	case reader.UserMemoryInfo:
		log.WithFields(logrus.Fields{"type": r.Type, "ptr": r.Ptr, "len": r.Len, "ok": r.OK}).Debug("User area")
	case reader.Upgrade:
		log.WithField("ok", r.OK).Debug("Upgrade stage")
	case reader.KeyPress:
		log.WithField("code", r.Code).Debug("Trigger key")
	case reader.Ack:
		log.WithField("ok", r.OK).Debug("Acknowledged")
	case reader.Unknown:
		log.Debug("Dropping unknown opcode")
	}
}

func numericOutcome(v int, decodeErr error, msg string) outcome {
	if decodeErr != nil {
		return outcome{err: newError(KindUnavailable, msg, decodeErr)}
	}
	return outcome{value: v}
}

func (m *Mediator) resolve(class RequestClass, out outcome) {
	if !m.pending.resolve(class, out) {
		m.logger.WithField("class", class).Debug("No pending request, dropping response")
	}
}

func (m *Mediator) handlePeripheral(p reader.Peripheral) {
	if !m.scanning {
		m.logger.WithField("address", p.Address).Debug("Not scanning, dropping discovery")
		return
	}
	if m.peripherals.observe(p) && m.peripheralSink != nil {
		m.peripheralSink(p)
	}
}

func (m *Mediator) handleTag(obs reader.TagObservation) {
	if !m.inventory {
		m.logger.WithField("epc", obs.EPC).Debug("Inventory stopped, dropping tag")
		return
	}
	tag, fresh := m.tags.observe(obs)
	if !fresh || m.tagSink == nil {
		return
	}
	m.tags.markSent(tag.EPC)
	m.tagSink(tag)
}

func (m *Mediator) handleConnected() {
	m.logger.Info("Reader connected")
	m.resolve(ClassConnect, outcome{flag: true})
}

func (m *Mediator) handleConnectFailed(message string) {
	m.logger.WithField("reason", message).Warn("Reader connection failed")
	m.resolve(ClassConnect, outcome{err: newError(KindHardwareFailure, "connect failed", errors.New(message))})
}

func (m *Mediator) handleDisconnected() {
	m.logger.Info("Reader disconnected")
	m.resolve(ClassDisconnect, outcome{flag: true})
	m.poller.stop()
}

