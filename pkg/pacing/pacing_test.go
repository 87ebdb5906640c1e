package pacing

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type fakeInput struct {
	calls    []string
	hoverErr error
}

func (f *fakeInput) Clear(ctx context.Context, selector string) error {
	f.calls = append(f.calls, "clear:"+selector)
	return nil
}

func (f *fakeInput) SendKeys(ctx context.Context, selector, keys string) error {
	f.calls = append(f.calls, "keys:"+keys)
	return nil
}

func (f *fakeInput) Hover(ctx context.Context, selector string) error {
	f.calls = append(f.calls, "hover:"+selector)
	return f.hoverErr
}

func (f *fakeInput) Click(ctx context.Context, selector string) error {
	f.calls = append(f.calls, "click:"+selector)
	return nil
}

func newPolicy(r *recorder) *Policy {
	return New(r, WithRand(rand.New(rand.NewSource(42))))
}

func TestHumanDurationClampedToWindow(t *testing.T) {
	p := newPolicy(&recorder{})
	for i := 0; i < 500; i++ {
		d := p.HumanDuration(time.Second, 2*time.Second)
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 2*time.Second)
	}
	assert.Equal(t, time.Second, p.HumanDuration(time.Second, time.Second))
}

func TestUniformDuration(t *testing.T) {
	p := newPolicy(&recorder{})
	for i := 0; i < 500; i++ {
		d := p.UniformDuration(500*time.Millisecond, 1500*time.Millisecond)
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestKeyDelay(t *testing.T) {
	p := newPolicy(&recorder{})
	for i := 0; i < 200; i++ {
		plain := p.KeyDelay('a')
		require.GreaterOrEqual(t, plain, 80*time.Millisecond)
		require.LessOrEqual(t, plain, 200*time.Millisecond)

		for _, r := range []rune{'A', '!', '('} {
			slow := p.KeyDelay(r)
			require.GreaterOrEqual(t, slow, 130*time.Millisecond)
			require.LessOrEqual(t, slow, 350*time.Millisecond)
		}
	}
}

func TestTypeTextSendsOneKeyPerRune(t *testing.T) {
	rec := &recorder{}
	in := &fakeInput{}

	require.NoError(t, newPolicy(rec).TypeText(context.Background(), in, "input", "Ab!"))

	assert.Equal(t, []string{"keys:A", "keys:b", "keys:!"}, in.calls)
	assert.Len(t, rec.delays, 3)
}

func TestClickHoversBetweenPauses(t *testing.T) {
	rec := &recorder{}
	in := &fakeInput{}

	require.NoError(t, newPolicy(rec).Click(context.Background(), in, "button"))

	assert.Equal(t, []string{"hover:button", "click:button"}, in.calls)
	require.Len(t, rec.delays, 2)
	assert.GreaterOrEqual(t, rec.delays[0], 200*time.Millisecond)
	assert.LessOrEqual(t, rec.delays[0], 600*time.Millisecond)
	assert.GreaterOrEqual(t, rec.delays[1], 100*time.Millisecond)
	assert.LessOrEqual(t, rec.delays[1], 300*time.Millisecond)
}

func TestClickIgnoresHoverFailure(t *testing.T) {
	rec := &recorder{}
	in := &fakeInput{hoverErr: errors.New("not hoverable")}

	require.NoError(t, newPolicy(rec).Click(context.Background(), in, "button"))
	assert.Equal(t, []string{"hover:button", "click:button"}, in.calls)
	assert.Len(t, rec.delays, 1)
}

func TestDisabledAndScaled(t *testing.T) {
	rec := &recorder{}
	p := New(rec, Disabled())
	require.NoError(t, p.HumanDelay(context.Background(), time.Second, 2*time.Second))
	assert.Empty(t, rec.delays)

	rec = &recorder{}
	p = New(rec, WithScale(0.5))
	require.NoError(t, p.RandomDelay(context.Background(), 2*time.Second, 2*time.Second))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(nil)
	assert.ErrorIs(t, p.HumanDelay(ctx, time.Hour, 2*time.Hour), context.Canceled)
}
