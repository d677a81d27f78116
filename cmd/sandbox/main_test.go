package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/nevindra/gencode/sandbox"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.addr != ":9000" {
		t.Errorf("addr = %s", cfg.addr)
	}
	if cfg.engine != "interpreter" {
		t.Errorf("engine = %s", cfg.engine)
	}
	if cfg.maxConcurrent != 4 {
		t.Errorf("maxConcurrent = %d", cfg.maxConcurrent)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("SANDBOX_ADDR", ":7000")
	t.Setenv("SANDBOX_MAX_CONCURRENT", "8")
	t.Setenv("SANDBOX_TIMEOUT", "3s")
	t.Setenv("SANDBOX_ALLOW", "enumerate, zip")
	t.Setenv("SANDBOX_MAX_OUTPUT", "-1")

	cfg := loadConfig()
	if cfg.addr != ":7000" || cfg.maxConcurrent != 8 || cfg.timeout != 3*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.allow, []string{"enumerate", "zip"}) {
		t.Errorf("allow = %v", cfg.allow)
	}
	if cfg.maxOutput != 64*1024 {
		t.Errorf("invalid max output should be ignored, got %d", cfg.maxOutput)
	}
}

func TestNewRunnerInterpreter(t *testing.T) {
	cfg := loadConfig()
	r, closeFn, err := newRunner(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if closeFn != nil {
		t.Error("interpreter should not need closing")
	}
	if _, ok := r.(*sandbox.Interpreter); !ok {
		t.Errorf("got %T", r)
	}

	cfg.profile = "bogus"
	if _, _, err := newRunner(cfg, nil); err == nil {
		t.Error("expected unknown profile error")
	}
}
