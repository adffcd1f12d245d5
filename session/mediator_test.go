package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/internal/testutils"
)

const quiet = 100 * time.Millisecond

type MediatorSuite struct {
	suite.Suite

	helper *testutils.TestHelper
	driver *testutils.MockDriver
	opts   *Options
	m      *Mediator
	ctx    context.Context
}

func TestMediatorSuite(t *testing.T) {
	suite.Run(t, new(MediatorSuite))
}

func (s *MediatorSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.driver = testutils.NewMockDriver()
	s.opts = DefaultOptions()
	s.opts.Clock = s.helper.Clock
	s.opts.Logger = s.helper.Logger
	s.ctx = context.Background()
}

func (s *MediatorSuite) TearDownTest() {
	if s.m != nil {
		s.NoError(s.m.Close())
		s.m = nil
	}
}

// start builds the mediator. Driver expectations must be registered first.
func (s *MediatorSuite) start() *Mediator {
	s.driver.AcceptAll()
	s.m = New(s.driver, s.opts)
	return s.m
}

func (s *MediatorSuite) scanAndDiscover(address, name string) {
	s.Require().NoError(s.m.StartScan(s.ctx, nil))
	s.driver.Discover(address, name)
}

func (s *MediatorSuite) state() State {
	st, err := s.m.State(s.ctx)
	s.Require().NoError(err)
	return st
}

func (s *MediatorSuite) TestSetPower_AllowedLevelsSendOneCommand() {
	// GOAL: Verify every allowed level reaches the driver exactly once
	//
	// TEST SCENARIO: setPower(1) and setPower(30) → one set-power command each → reader acks → true

	s.driver.RespondWith(reader.CmdSetPower, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpSetPower, "1")
	})
	s.start()

	for i, level := range []int{1, 30} {
		ok, err := s.m.SetPower(s.ctx, level)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(i+1, s.driver.CountSent(reader.CmdSetPower), "each setPower MUST issue exactly one command")
	}

	sent := s.driver.Sent()
	s.Require().Len(sent, 2)
	s.Equal([]string{"1", "1", "30", "30"}, sent[1].Args)
}

func (s *MediatorSuite) TestSetPower_RejectsOtherLevels() {
	// GOAL: Verify invalid levels fail synchronously without touching the driver
	//
	// TEST SCENARIO: setPower with levels outside {1, 30} → InvalidArgument → zero commands

	s.start()

	for _, level := range []int{-1, 0, 2, 15, 29, 31, 100} {
		ok, err := s.m.SetPower(s.ctx, level)
		s.False(ok)
		s.ErrorIs(err, ErrInvalidArgument, "level %d MUST be rejected", level)
	}
	s.Empty(s.driver.Sent(), "rejected levels MUST NOT reach the driver")
}

func (s *MediatorSuite) TestSetPower_ReaderRefusal() {
	s.driver.RespondWith(reader.CmdSetPower, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpSetPower, "0")
	})
	s.start()

	ok, err := s.m.SetPower(s.ctx, 30)
	s.NoError(err)
	s.False(ok, "a \"0\" payload MUST resolve as false")
}

func (s *MediatorSuite) TestGetPowerAndBattery() {
	s.driver.RespondWith(reader.CmdGetPower, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpGetPower, "30")
	})
	s.driver.RespondWith(reader.CmdGetBattery, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpBattery, "87")
	})
	s.start()

	power, err := s.m.GetPower(s.ctx)
	s.Require().NoError(err)
	s.Equal(30, power)

	battery, err := s.m.GetBatteryLevel(s.ctx)
	s.Require().NoError(err)
	s.Equal(87, battery)

	s.Empty(s.state().Pending)
}

func (s *MediatorSuite) TestNonNumericPayloadResolvesUnavailable() {
	// GOAL: Verify decode failures resolve the request instead of leaving it pending
	//
	// TEST SCENARIO: getPower → reader answers "n/a" → Unavailable (a hardware failure) → slot freed

	s.driver.RespondWith(reader.CmdGetPower, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpGetPower, "n/a")
	})
	s.start()

	_, err := s.m.GetPower(s.ctx)
	s.ErrorIs(err, ErrUnavailable)
	s.ErrorIs(err, ErrHardwareFailure, "Unavailable MUST also match HardwareFailure")
	s.Equal(KindUnavailable, KindOf(err))
	s.Empty(s.state().Pending)
}

func (s *MediatorSuite) TestResponseWithoutPendingRequestIsDropped() {
	s.driver.RespondWith(reader.CmdGetPower, func(h reader.Handler, _ reader.Command) {
		h.OnResponse(reader.OpGetPower, "30")
	})
	s.start()

	s.driver.Respond(reader.OpGetPower, "5")
	s.driver.Respond(reader.OpHardwareVersion, "V1.0")
	s.driver.Respond(reader.Opcode(0x99), "junk")
	s.Empty(s.state().Pending)

	power, err := s.m.GetPower(s.ctx)
	s.Require().NoError(err)
	s.Equal(30, power, "an unsolicited response MUST NOT resolve a later request")
}

func (s *MediatorSuite) TestConnect_Example() {
	// GOAL: Verify connect resolves through the lifecycle callback and validates the address locally
	//
	// TEST SCENARIO: discover "UR100" at AA:BB → connect(AA:BB) → true; connect(ZZ:ZZ) → AddressNotFound, no driver call

	s.driver.RespondWith(reader.CmdConnect, func(reader.Handler, reader.Command) {
		s.driver.ConnectSucceeded()
	})
	s.start()
	s.scanAndDiscover("AA:BB", "UR100")

	ok, err := s.m.Connect(s.ctx, "AA:BB")
	s.Require().NoError(err)
	s.True(ok)

	sent := s.driver.Sent()
	s.Require().Equal(reader.CmdConnect, sent[len(sent)-1].Kind)
	s.Equal("AA:BB", sent[len(sent)-1].Address)
	s.Equal("UR100", sent[len(sent)-1].Name)

	ok, err = s.m.Connect(s.ctx, "ZZ:ZZ")
	s.False(ok)
	s.ErrorIs(err, ErrAddressNotFound)
	s.Equal(1, s.driver.CountSent(reader.CmdConnect), "unknown address MUST NOT reach the driver")

	_, err = s.m.Connect(s.ctx, "")
	s.ErrorIs(err, ErrInvalidArgument)
}

func (s *MediatorSuite) TestConnect_Failure() {
	s.driver.RespondWith(reader.CmdConnect, func(reader.Handler, reader.Command) {
		s.driver.ConnectFailed("peripheral out of range")
	})
	s.start()
	s.scanAndDiscover("AA:BB", "UR100")

	ok, err := s.m.Connect(s.ctx, "AA:BB")
	s.False(ok)
	s.ErrorIs(err, ErrHardwareFailure)
	s.Contains(err.Error(), "peripheral out of range")
}

func (s *MediatorSuite) TestDiscovery_DeduplicatesByAddress() {
	// GOAL: Verify a peripheral is tracked and delivered once per scan session
	//
	// TEST SCENARIO: two discoveries of AA:BB → one tracked entry → one delivered event

	s.start()
	devices := testutils.NewCollector[reader.Peripheral]()
	s.Require().NoError(s.m.StartScan(s.ctx, devices.Sink()))

	s.driver.Discover("AA:BB", "UR100")
	s.driver.Discover("AA:BB", "UR100")
	s.driver.Discover("CC:DD", "Headphones")
	s.driver.Discover("EE:FF", "UR200")

	peripherals, err := s.m.Peripherals(s.ctx)
	s.Require().NoError(err)
	s.Equal([]reader.Peripheral{
		{Address: "AA:BB", Name: "UR100", RSSI: -60},
		{Address: "EE:FF", Name: "UR200", RSSI: -60},
	}, peripherals, "non-UR peripherals MUST be filtered and order MUST follow arrival")

	s.Equal("AA:BB", devices.Next(s.T()).Address)
	s.Equal("EE:FF", devices.Next(s.T()).Address)
	devices.ExpectNone(s.T(), quiet)
}

func (s *MediatorSuite) TestDiscovery_EmptyPrefixAcceptsAll() {
	s.opts.NamePrefix = ""
	s.start()
	s.scanAndDiscover("CC:DD", "Headphones")

	s.Equal(1, s.state().Peripherals)
}

func (s *MediatorSuite) TestDiscovery_DroppedWhenNotScanning() {
	s.start()
	s.scanAndDiscover("AA:BB", "UR100")

	ok, err := s.m.StopScan(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	s.driver.Discover("EE:FF", "UR200")
	st := s.state()
	s.False(st.Scanning)
	s.Equal(1, st.Peripherals, "late discovery callbacks MUST be dropped")
}

func (s *MediatorSuite) TestStartScan_ClearsPreviousSession() {
	s.start()
	s.scanAndDiscover("AA:BB", "UR100")
	s.Require().Equal(1, s.state().Peripherals)

	devices := testutils.NewCollector[reader.Peripheral]()
	s.Require().NoError(s.m.StartScan(s.ctx, devices.Sink()))
	s.Equal(0, s.state().Peripherals)

	s.driver.Discover("AA:BB", "UR100")
	s.Equal("AA:BB", devices.Next(s.T()).Address, "a fresh scan MUST deliver the peripheral again")
}

func (s *MediatorSuite) TestTags_MergeRepeatedObservations() {
	// GOAL: Verify identical (epc, tid) observations merge into one record and deliver once
	//
	// TEST SCENARIO: observe E1/T1 twice → one record with count 2 → one delivery from the first observation

	s.start()
	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))

	s.driver.ObserveTag("E1", "T1", -40)
	s.driver.ObserveTag("E1", "T1", -35)

	records, err := s.m.Tags(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(2, records[0].Count)
	s.Equal(-35.0, records[0].RSSI, "repeat observation MUST refresh rssi")

	first := tags.Next(s.T())
	s.Equal(Tag{EPC: "E1", TID: "T1", RSSI: -40, Count: 1}, first)
	tags.ExpectNone(s.T(), quiet)
}

func (s *MediatorSuite) TestTags_DeliveryKeyedByEPC() {
	s.start()
	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))

	s.driver.ObserveTag("E1", "T1", -40)
	s.driver.ObserveTag("E1", "T2", -41)

	st := s.state()
	s.Equal(2, st.Tags, "distinct tids MUST be separate records")
	s.Equal(1, st.SentTags)
	tags.Next(s.T())
	tags.ExpectNone(s.T(), quiet)
}

func (s *MediatorSuite) TestClearTag_RearmsDelivery() {
	// GOAL: Verify clearing a tag makes its next observation deliver again
	//
	// TEST SCENARIO: observe E1 → clearTag(E1) → observe E1 → second delivery

	s.start()
	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))

	s.driver.ObserveTag("E1", "T1", -40)
	tags.Next(s.T())

	ok, err := s.m.ClearTag(s.ctx, "E1")
	s.Require().NoError(err)
	s.True(ok)

	s.driver.ObserveTag("E1", "T1", -42)
	again := tags.Next(s.T())
	s.Equal(1, again.Count, "cleared record MUST restart its count")
}

func (s *MediatorSuite) TestClearTag_UnknownEPC() {
	s.start()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, nil))
	s.driver.ObserveTag("E1", "T1", -40)
	before := s.state()

	ok, err := s.m.ClearTag(s.ctx, "NOPE")
	s.False(ok)
	s.ErrorIs(err, ErrTagNotFound)

	after := s.state()
	s.Equal(before.Tags, after.Tags, "failed clear MUST leave records unchanged")
	s.Equal(before.SentTags, after.SentTags, "failed clear MUST leave the sent set unchanged")
}

func (s *MediatorSuite) TestTags_UnsinkedObservationStillDeliversLater() {
	// GOAL: Verify an observation nobody received does not consume the tag's one delivery
	//
	// TEST SCENARIO: inventory without sink → observe E1 → inventory with sink → observe E1 → delivered once

	s.start()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, nil))
	s.driver.ObserveTag("E1", "T1", -40)

	st := s.state()
	s.Equal(1, st.Tags)
	s.Equal(0, st.SentTags, "tag MUST NOT be marked sent when no sink received it")

	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))
	s.driver.ObserveTag("E1", "T1", -38)

	got := tags.Next(s.T())
	s.Equal("E1", got.EPC)
	s.Equal(2, got.Count, "delivered record MUST carry the merged count")
	tags.ExpectNone(s.T(), quiet)
	s.Equal(1, s.state().SentTags)
}

func (s *MediatorSuite) TestClearAllTags() {
	s.start()
	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))
	s.driver.ObserveTag("E1", "T1", -40)
	s.driver.ObserveTag("E2", "T2", -40)
	tags.Next(s.T())
	tags.Next(s.T())

	ok, err := s.m.ClearAllTags(s.ctx)
	s.Require().NoError(err)
	s.True(ok)
	st := s.state()
	s.Zero(st.Tags)
	s.Zero(st.SentTags)

	s.driver.ObserveTag("E2", "T2", -40)
	s.Equal("E2", tags.Next(s.T()).EPC)
}

func (s *MediatorSuite) TestTags_DroppedAfterStop() {
	s.start()
	tags := testutils.NewCollector[Tag]()
	s.Require().NoError(s.m.StartTagInventory(s.ctx, tags.Sink()))

	ok, err := s.m.StopTagInventory(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	s.driver.ObserveTag("E1", "T1", -40)
	s.Zero(s.state().Tags)
	tags.ExpectNone(s.T(), quiet)
	s.Equal([]reader.CommandKind{reader.CmdStartInventory, reader.CmdStopInventory}, s.driver.SentKinds())
}

func (s *MediatorSuite) TestPoll_StartIsIdempotent() {
	// GOAL: Verify two starts leave one timer and stop silences later ticks
	//
	// TEST SCENARIO: start twice → one ticker → tick emits true → stop → tick emits nothing

	s.driver.SetConnected(true)
	s.start()
	events := testutils.NewCollector[bool]()

	s.Require().NoError(s.m.StartConnectivityPoll(s.ctx, events.Sink()))
	s.Require().NoError(s.m.StartConnectivityPoll(s.ctx, events.Sink()))
	s.Equal(1, s.helper.Clock.ActiveTickers(), "a second start MUST NOT create another timer")

	s.helper.Clock.Advance(DefaultPollInterval)
	s.True(events.Next(s.T()))
	events.ExpectNone(s.T(), quiet)

	s.driver.SetConnected(false)
	s.helper.Clock.Advance(DefaultPollInterval)
	s.False(events.Next(s.T()), "each tick MUST report the current driver flag")

	s.Require().NoError(s.m.StopConnectivityPoll(s.ctx))
	s.Zero(s.helper.Clock.ActiveTickers())
	s.helper.Clock.Advance(DefaultPollInterval)
	events.ExpectNone(s.T(), quiet)
	s.False(s.state().Polling)
}

func (s *MediatorSuite) TestPoll_NotConnectedEmitsFalseOnce() {
	s.start()
	events := testutils.NewCollector[bool]()

	s.Require().NoError(s.m.StartConnectivityPoll(s.ctx, events.Sink()))
	s.False(events.Next(s.T()))
	s.Zero(s.helper.Clock.ActiveTickers(), "no timer MUST start while disconnected")

	s.helper.Clock.Advance(3 * DefaultPollInterval)
	events.ExpectNone(s.T(), quiet)
}

func (s *MediatorSuite) TestDisconnect_StopsPoll() {
	// GOAL: Verify a resolved disconnect stops the connectivity poll
	//
	// TEST SCENARIO: poll running → disconnect → reset + disconnect sent → reader reports disconnect → poll idle

	s.driver.SetConnected(true)
	s.driver.RespondWith(reader.CmdDisconnect, func(reader.Handler, reader.Command) {
		s.driver.Disconnected()
	})
	s.start()
	s.scanAndDiscover("AA:BB", "UR100")

	events := testutils.NewCollector[bool]()
	s.Require().NoError(s.m.StartConnectivityPoll(s.ctx, events.Sink()))
	s.Require().True(s.state().Polling)

	ok, err := s.m.Disconnect(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	st := s.state()
	s.False(st.Polling, "disconnect MUST stop the poll")
	s.Zero(st.Peripherals, "disconnect MUST forget tracked peripherals")
	s.Zero(s.helper.Clock.ActiveTickers())

	kinds := s.driver.SentKinds()
	s.Equal([]reader.CommandKind{reader.CmdReset, reader.CmdDisconnect}, kinds[len(kinds)-2:])

	s.helper.Clock.Advance(DefaultPollInterval)
	events.ExpectNone(s.T(), quiet)
}

func (s *MediatorSuite) TestUnsolicitedDisconnectStopsPoll() {
	s.driver.SetConnected(true)
	s.start()
	s.Require().NoError(s.m.StartConnectivityPoll(s.ctx, nil))

	s.driver.Disconnected()
	s.False(s.state().Polling)
}

func (s *MediatorSuite) TestRequestTimeout() {
	// GOAL: Verify the bounded wait fails the request and frees its slot
	//
	// TEST SCENARIO: timeout 5s → getPower never answered → clock advances 5s → Timeout → slot empty

	s.opts.RequestTimeout = 5 * time.Second
	s.start()

	errs := make(chan error, 1)
	go func() {
		_, err := s.m.GetPower(s.ctx)
		errs <- err
	}()

	s.Require().Eventually(func() bool {
		return s.helper.Clock.ActiveTimers() == 1
	}, testutils.WaitTimeout, 5*time.Millisecond)
	s.helper.Clock.Advance(5 * time.Second)

	select {
	case err := <-errs:
		s.ErrorIs(err, ErrTimeout)
	case <-time.After(testutils.WaitTimeout):
		s.FailNow("request MUST time out")
	}
	s.Empty(s.state().Pending, "timed out request MUST release its slot")
}

func (s *MediatorSuite) TestContextCancellationReleasesSlot() {
	s.start()
	ctx, cancel := context.WithCancel(s.ctx)

	errs := make(chan error, 1)
	go func() {
		_, err := s.m.GetBatteryLevel(ctx)
		errs <- err
	}()
	s.waitPending(ClassGetBattery)

	cancel()
	err := <-errs
	s.ErrorIs(err, context.Canceled)
	s.Empty(s.state().Pending)
}

func (s *MediatorSuite) TestRejectPolicy() {
	// GOAL: Verify the reject policy refuses a second same-class request
	//
	// TEST SCENARIO: getPower pending → second getPower → Busy → first still resolves

	s.opts.PendingPolicy = PolicyReject
	s.start()

	results := make(chan int, 1)
	go func() {
		v, err := s.m.GetPower(s.ctx)
		s.NoError(err)
		results <- v
	}()
	s.waitPending(ClassGetPower)

	_, err := s.m.GetPower(s.ctx)
	s.ErrorIs(err, ErrBusy)
	s.Equal(1, s.driver.CountSent(reader.CmdGetPower), "a rejected request MUST NOT reach the driver")

	s.driver.Respond(reader.OpGetPower, "7")
	s.Equal(7, <-results)
}

func (s *MediatorSuite) TestRejectPolicy_BusyDisconnectKeepsPeripherals() {
	// GOAL: Verify a rejected disconnect leaves the discovered peripherals alone
	//
	// TEST SCENARIO: reject policy → disconnect pending → discover P2 → second disconnect → Busy → P2 still listed

	s.opts.PendingPolicy = PolicyReject
	s.start()

	results := make(chan bool, 1)
	go func() {
		ok, err := s.m.Disconnect(s.ctx)
		s.NoError(err)
		results <- ok
	}()
	s.waitPending(ClassDisconnect)

	s.scanAndDiscover("AA:BB:CC:00:00:02", "UR200")
	s.Require().Equal(1, s.state().Peripherals)

	_, err := s.m.Disconnect(s.ctx)
	s.ErrorIs(err, ErrBusy)
	s.Equal(1, s.state().Peripherals, "a rejected disconnect MUST NOT clear peripherals")
	s.Equal(1, s.driver.CountSent(reader.CmdDisconnect), "a rejected disconnect MUST NOT reach the driver")

	s.driver.Disconnected()
	s.True(<-results)
}

func (s *MediatorSuite) TestCancelWhileDriverBlocksReleasesSlot() {
	// GOAL: Verify a caller is not held hostage by a driver call that blocks the loop
	//
	// TEST SCENARIO: getBattery send blocks → caller deadline passes → caller gets DeadlineExceeded → driver unblocks → slot freed

	unblock := make(chan struct{})
	s.driver.RespondWith(reader.CmdGetBattery, func(reader.Handler, reader.Command) {
		<-unblock
	})
	s.start()
	defer func() {
		select {
		case <-unblock:
		default:
			close(unblock)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := s.m.GetBatteryLevel(ctx)
		errs <- err
	}()

	select {
	case err := <-errs:
		s.ErrorIs(err, context.DeadlineExceeded)
	case <-time.After(testutils.WaitTimeout):
		s.FailNow("caller MUST return once its context is done")
	}

	close(unblock)
	s.Require().Eventually(func() bool {
		st, err := s.m.State(s.ctx)
		return err == nil && len(st.Pending) == 0
	}, testutils.WaitTimeout, 5*time.Millisecond, "slot of an abandoned request MUST be released")
}

func (s *MediatorSuite) TestReplacePolicy() {
	// GOAL: Verify the default policy hands the answer to the newest caller
	//
	// TEST SCENARIO: getPower A pending → getPower B → reader answers → B resolves → A only returns on cancel

	s.start()
	ctxA, cancelA := context.WithCancel(s.ctx)
	defer cancelA()

	errsA := make(chan error, 1)
	go func() {
		_, err := s.m.GetPower(ctxA)
		errsA <- err
	}()
	s.waitPending(ClassGetPower)

	resultsB := make(chan int, 1)
	go func() {
		v, err := s.m.GetPower(s.ctx)
		s.NoError(err)
		resultsB <- v
	}()
	s.Require().Eventually(func() bool {
		return s.driver.CountSent(reader.CmdGetPower) == 2
	}, testutils.WaitTimeout, 5*time.Millisecond)

	s.driver.Respond(reader.OpGetPower, "30")
	s.Equal(30, <-resultsB)

	select {
	case <-errsA:
		s.FailNow("displaced caller MUST NOT be resolved by the reader")
	case <-time.After(quiet):
	}

	cancelA()
	s.ErrorIs(<-errsA, context.Canceled)
	s.Empty(s.state().Pending)
}

func (s *MediatorSuite) TestSendFailure() {
	linkDown := errors.New("link down")
	s.driver.FailKind(reader.CmdGetBattery, linkDown)
	s.start()

	_, err := s.m.GetBatteryLevel(s.ctx)
	s.ErrorIs(err, ErrHardwareFailure)
	s.ErrorIs(err, linkDown, "driver cause MUST be wrapped")
	s.Empty(s.state().Pending, "failed send MUST release the slot")
}

func (s *MediatorSuite) TestStartScan_SendFailure() {
	s.driver.FailKind(reader.CmdStartScan, errors.New("bluetooth off"))
	s.start()

	err := s.m.StartScan(s.ctx, nil)
	s.ErrorIs(err, ErrHardwareFailure)
	s.False(s.state().Scanning)
}

func (s *MediatorSuite) TestClose() {
	s.start()

	errs := make(chan error, 1)
	go func() {
		_, err := s.m.GetPower(s.ctx)
		errs <- err
	}()
	s.waitPending(ClassGetPower)

	s.Require().NoError(s.m.Close())
	s.ErrorIs(<-errs, ErrClosed, "pending requests MUST fail on close")

	_, err := s.m.GetBatteryLevel(s.ctx)
	s.ErrorIs(err, ErrClosed)
	s.NoError(s.m.Close(), "Close MUST be idempotent")

	// callbacks after close are dropped
	s.driver.Respond(reader.OpGetPower, "1")
	s.m = nil
}

func (s *MediatorSuite) waitPending(class RequestClass) {
	s.Require().Eventually(func() bool {
		st, err := s.m.State(s.ctx)
		if err != nil {
			return false
		}
		for _, p := range st.Pending {
			if p == class.String() {
				return true
			}
		}
		return false
	}, testutils.WaitTimeout, 5*time.Millisecond)
}

func TestNew_DefaultsAppliedToZeroOptions(t *testing.T) {
	drv := testutils.NewMockDriver()
	m := New(drv, &Options{})
	defer m.Close()

	assert.Equal(t, []int{1, 30}, m.AllowedPowerLevels())
	require.Equal(t, DefaultPollInterval, m.opts.PollInterval)
	assert.Equal(t, PolicyReplace, m.opts.PendingPolicy)
	assert.Empty(t, m.opts.NamePrefix, "an explicit empty prefix MUST be kept")
}

// adapterDriver adds an adapter check to the mock driver.
type adapterDriver struct {
	*testutils.MockDriver
	err error
}

func (d *adapterDriver) CheckAdapter() error {
	return d.err
}

func TestBluetoothEnabled(t *testing.T) {
	tests := []struct {
		name    string
		driver  reader.Driver
		want    bool
		wantErr error
	}{
		{name: "driver without adapter check", driver: testutils.NewMockDriver(), want: true},
		{name: "adapter on", driver: &adapterDriver{MockDriver: testutils.NewMockDriver()}, want: true},
		{
			name:   "adapter off",
			driver: &adapterDriver{MockDriver: testutils.NewMockDriver(), err: fmt.Errorf("%w: can't init hci", reader.ErrBluetoothOff)},
			want:   false,
		},
		{
			name:    "adapter failure",
			driver:  &adapterDriver{MockDriver: testutils.NewMockDriver(), err: errors.New("permission denied")},
			want:    false,
			wantErr: ErrHardwareFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.driver, &Options{Logger: testutils.NewTestHelper(t).Logger})
			defer m.Close()

			got, err := m.BluetoothEnabled(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
