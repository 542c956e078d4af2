package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type probe struct {
	name string
	err  error
	log  *[]string
}

func (p *probe) Run() { *p.log = append(*p.log, "run "+p.name) }

func (p *probe) Shutdown(context.Context) error {
	*p.log = append(*p.log, "stop "+p.name)
	return p.err
}

func (p *probe) String() string { return p.name }

func TestGroup(t *testing.T) {
	var log []string
	g := Group{}
	g.Add(&probe{name: "a", log: &log}, "not runnable")
	g.AddIf(false, &probe{name: "skipped", log: &log})
	g.AddIf(true, &probe{name: "b", err: errors.New("boom"), log: &log})
	g.Add(&probe{name: "c", err: context.Canceled, log: &log})

	if g.Len() != 4 {
		t.Errorf("expected 4 services, got %v", g.Len())
	}
	g.Start()
	err := g.Shutdown(context.Background())

	want := "run a,run b,run c,stop c,stop b,stop a"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
	if err == nil || !strings.Contains(err.Error(), "[b]") {
		t.Errorf("expected an error of b, got %v", err)
	}
}
