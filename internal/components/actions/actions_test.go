package actions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
	"github.com/MahdiBaghbani/confdesk-go/internal/components/selection"
	"github.com/MahdiBaghbani/confdesk-go/internal/session/recorder"
)

type values map[interaction.ID]map[interaction.Attribute]string

func (v values) Attribute(id interaction.ID, a interaction.Attribute) (string, error) {
	s, ok := v[id][a]
	if !ok {
		return "", errors.New("not cached")
	}
	return s, nil
}

type fixture struct {
	proj *interaction.Projection
	sel  *selection.Controller
	req  *recorder.Requester
	gw   *Gateway
}

func newFixture(t *testing.T, hosts map[interaction.ID][3]string) *fixture {
	t.Helper()
	f := &fixture{proj: interaction.New("alice"), req: &recorder.Requester{}}
	f.sel = selection.New(f.proj, "3172222222", nil)
	f.gw = New(f.sel, f.req, nil)

	src := values{}
	attrs := []interaction.Attribute{interaction.AttrState, interaction.AttrCapabilities, interaction.AttrMuted}
	for id := interaction.ID(1); id <= interaction.ID(len(hosts)); id++ {
		h := hosts[id]
		src[id] = map[interaction.Attribute]string{
			interaction.AttrState:        h[0],
			interaction.AttrCapabilities: h[1],
			interaction.AttrMuted:        h[2],
		}
		if _, err := f.proj.AddHost(id); err != nil {
			t.Fatal(err)
		}
		if err := f.proj.Refresh(id, 0, src, attrs); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

const all = "pickup|hold|mute|disconnect|conference"

func TestGateway_SingleTargetRequests(t *testing.T) {
	tests := []struct {
		action selection.Action
		state  string
		muted  string
		want   string
	}{
		{selection.ActionPickup, "alerting", "false", "pickup 1"},
		{selection.ActionDisconnect, "connected", "false", "disconnect 1"},
		{selection.ActionHold, "connected", "false", "hold 1 on=true"},
		{selection.ActionHold, "held", "false", "hold 1 on=false"},
		{selection.ActionMute, "connected", "false", "mute 1 on=true"},
		{selection.ActionMute, "connected", "true", "mute 1 on=false"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s/%s", tt.action, tt.state, tt.muted), func(t *testing.T) {
			f := newFixture(t, map[interaction.ID][3]string{1: {tt.state, all, tt.muted}})
			f.sel.Focus(1)

			res, err := f.gw.Execute(tt.action)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !res.Submitted {
				t.Error("Submitted = false")
			}
			reqs := f.req.Requests()
			if len(reqs) != 1 || reqs[0].String() != tt.want {
				t.Errorf("requests = %v, want [%s]", reqs, tt.want)
			}
		})
	}
}

func TestGateway_NotEligibleIsNoop(t *testing.T) {
	f := newFixture(t, map[interaction.ID][3]string{1: {"connected", "hold", "false"}})

	for _, a := range []selection.Action{selection.ActionHold, selection.ActionConference} {
		if _, err := f.gw.Execute(a); !errors.Is(err, ErrNotEligible) {
			t.Errorf("Execute(%s) without selection error = %v, want ErrNotEligible", a, err)
		}
	}

	f.sel.Focus(1)
	if _, err := f.gw.Execute(selection.ActionPickup); !errors.Is(err, ErrNotEligible) {
		t.Errorf("Execute(pickup) without capability error = %v, want ErrNotEligible", err)
	}
	if n := len(f.req.Requests()); n != 0 {
		t.Errorf("requests submitted = %d, want 0", n)
	}
}

func TestGateway_ConferenceTargetsLiveChecked(t *testing.T) {
	f := newFixture(t, map[interaction.ID][3]string{
		1: {"connected", all, "false"},
		2: {"external_disconnect", all, "false"},
		3: {"held", all, "false"},
	})
	for _, id := range []interaction.ID{1, 2, 3} {
		f.sel.SetChecked(id, true)
	}

	res, err := f.gw.Execute(selection.ActionConference)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Targets) != 2 || res.Targets[0] != 1 || res.Targets[1] != 3 {
		t.Errorf("Targets = %v, want [1 3]", res.Targets)
	}
	if reqs := f.req.Requests(); len(reqs) != 1 || reqs[0].String() != "conference 1 3" {
		t.Errorf("requests = %v", reqs)
	}
}

func TestGateway_Dial(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.gw.Execute(selection.ActionDial)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Destination != "3172222222" {
		t.Errorf("Destination = %q", res.Destination)
	}

	f.sel.SetDialString("")
	if _, err := f.gw.Execute(selection.ActionDial); !errors.Is(err, ErrNotEligible) {
		t.Errorf("Execute(dial) with empty destination error = %v", err)
	}
	if n := len(f.req.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestGateway_SubmitFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, map[interaction.ID][3]string{1: {"connected", all, "false"}})
	f.sel.Focus(1)
	f.req.Fail = errors.New("bridge unavailable")
	before := f.proj.Views()

	res, err := f.gw.Execute(selection.ActionDisconnect)
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if res.Submitted {
		t.Error("Submitted = true after requester failure")
	}
	if after := f.proj.Views(); len(after) != len(before) || after[0].State != before[0].State {
		t.Error("failed submission changed the projection")
	}
	if !f.sel.Eligibility().Disconnect {
		t.Error("failed submission changed eligibility")
	}
}

func TestGateway_UnknownAction(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.gw.Execute("transfer"); err == nil || errors.Is(err, ErrNotEligible) {
		t.Errorf("Execute(transfer) error = %v", err)
	}
}
