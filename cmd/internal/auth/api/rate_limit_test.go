package authapi

import (
	"net"
	"testing"
	"time"
)

func TestEvaluateWindowThrottle(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	failures := []time.Time{
		now.Add(-1 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-6 * time.Minute),
	}

	blocked, retry := evaluateWindowThrottle(now, failures, 2, 5*time.Minute)
	if !blocked {
		t.Fatalf("expected window throttle to block")
	}
	if retry != 3*time.Minute {
		t.Fatalf("expected retry=3m, got %v", retry)
	}

	blocked, retry = evaluateWindowThrottle(now, failures, 3, 5*time.Minute)
	if blocked {
		t.Fatalf("expected window throttle to allow")
	}
	if retry != 0 {
		t.Fatalf("expected retry=0, got %v", retry)
	}
}

func TestLoginLimiter_BlocksAndRecovers(t *testing.T) {
	t.Parallel()

	l := newLoginLimiter(2, time.Minute)
	ip := net.ParseIP("203.0.113.7")
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	l.fail(ip, now)
	if blocked, _ := l.check(ip, now); blocked {
		t.Fatalf("one failure should not block")
	}
	l.fail(ip, now.Add(10*time.Second))
	blocked, retry := l.check(ip, now.Add(20*time.Second))
	if !blocked || retry != 40*time.Second {
		t.Fatalf("expected block for 40s, got %v %v", blocked, retry)
	}

	if blocked, _ := l.check(net.ParseIP("203.0.113.8"), now); blocked {
		t.Fatalf("other addresses are independent")
	}
	if blocked, _ := l.check(ip, now.Add(2*time.Minute)); blocked {
		t.Fatalf("failures should age out")
	}
}

func TestLoginLimiter_Disabled(t *testing.T) {
	t.Parallel()

	var l *loginLimiter
	l.fail(net.ParseIP("203.0.113.7"), time.Now())
	if blocked, _ := l.check(net.ParseIP("203.0.113.7"), time.Now()); blocked {
		t.Fatalf("nil limiter never blocks")
	}
}
