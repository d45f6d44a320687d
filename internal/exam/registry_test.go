package exam

import "testing"

func TestRegistryReplaceClosesPrevious(t *testing.T) {
	g := NewRegistry()
	t.Cleanup(g.Close)

	clock := newFakeClock()
	first := newTestRunner(t, twoQuestions(), newFakeBackend(), clock, newFakeTicker())
	second := newTestRunner(t, twoQuestions(), newFakeBackend(), clock, newFakeTicker())
	first.Begin()
	second.Begin()

	g.Put("sess", "t1", first)
	g.Put("sess", "t1", second)

	if first.State() != StateClosed {
		t.Errorf("replaced runner state = %v", first.State())
	}
	waitDone(t, first.Done())
	if got, ok := g.Get("sess", "t1"); !ok || got != second {
		t.Error("Get did not return the new runner")
	}
	if g.Len() != 1 {
		t.Errorf("len = %d", g.Len())
	}
}

func TestRegistryRemoveSession(t *testing.T) {
	g := NewRegistry()
	t.Cleanup(g.Close)

	clock := newFakeClock()
	a := newTestRunner(t, twoQuestions(), newFakeBackend(), clock, newFakeTicker())
	b := newTestRunner(t, twoQuestions(), newFakeBackend(), clock, newFakeTicker())
	other := newTestRunner(t, twoQuestions(), newFakeBackend(), clock, newFakeTicker())
	g.Put("s1", "t1", a)
	g.Put("s1", "t2", b)
	g.Put("s2", "t1", other)

	g.RemoveSession("s1")

	if a.State() != StateClosed || b.State() != StateClosed {
		t.Error("session runners not closed")
	}
	if other.State() == StateClosed {
		t.Error("other session's runner closed")
	}
	if _, ok := g.Get("s1", "t1"); ok {
		t.Error("removed runner still registered")
	}
	if g.Len() != 1 {
		t.Errorf("len = %d", g.Len())
	}

	g.Remove("s2", "t1")
	if other.State() != StateClosed || g.Len() != 0 {
		t.Error("Remove did not close the runner")
	}
}
