//go:build !tinygo

package broadcast

import (
	"errors"
	"log/slog"
	"testing"
)

type fakeAdvertiser struct {
	starts, stops int
	startErr      error
}

func (a *fakeAdvertiser) Start() error {
	a.starts++
	return a.startErr
}

func (a *fakeAdvertiser) Stop() error {
	a.stops++
	return nil
}

func TestGATT_RearmKeepsAdvertisementRegistered(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		wantErr  bool
	}{
		{name: "restarted", startErr: nil},
		{name: "already advertising", startErr: errors.New("org.bluez.Error.AlreadyExists: Already Exists")},
		{name: "adapter failure", startErr: errors.New("org.bluez.Error.Failed: not powered"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := &fakeAdvertiser{startErr: tt.startErr}
			g := NewGATT(nil, GATTOptions{Logger: slog.New(slog.DiscardHandler)})
			g.adv = adv

			err := g.RearmAdvertising()
			if (err != nil) != tt.wantErr {
				t.Fatalf("RearmAdvertising() err = %v, wantErr %v", err, tt.wantErr)
			}
			if adv.stops != 0 {
				t.Errorf("Stop called %d times; re-arming must not stop the advertisement", adv.stops)
			}
			if adv.starts != 1 {
				t.Errorf("Start called %d times; want 1", adv.starts)
			}
		})
	}
}

func TestGATT_RearmRepeatedDisconnects(t *testing.T) {
	adv := &fakeAdvertiser{}
	g := NewGATT(nil, GATTOptions{Logger: slog.New(slog.DiscardHandler)})
	g.adv = adv

	for i := 0; i < 3; i++ {
		if err := g.RearmAdvertising(); err != nil {
			t.Fatalf("RearmAdvertising() #%d err = %v", i+1, err)
		}
	}
	if adv.stops != 0 || adv.starts != 3 {
		t.Errorf("starts=%d stops=%d; want 3 and 0", adv.starts, adv.stops)
	}
}
