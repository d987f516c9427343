// Package climate supplies environmental forcing from cyclic monthly
// time series.
//
// Times are years since January of the reference year. A series that runs
// out of records restarts from its first record with its time offset
// advanced by one period, so a decade of data can drive a century-long run.
package climate

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/plantfate/simerr"
)

// DefaultReferenceYear is the calendar year at t = 0.
const DefaultReferenceYear = 2000

// Options configures a Provider.
type Options struct {
	ReferenceYear int
	Interpolation Interpolation
}

type metRecord struct {
	Year  int     `csv:"year"`
	Month int     `csv:"month"`
	Temp  float64 `csv:"temperature"`
	VPD   float64 `csv:"vpd"`
	PPFD  float64 `csv:"ppfd"`
	SWP   float64 `csv:"swp"`
}

type co2Record struct {
	Year  int     `csv:"year"`
	Month int     `csv:"month"`
	CO2   float64 `csv:"co2"`
}

// series is one cyclic forcing stream with a bracketing cursor.
type series struct {
	times  []float64 // record times within one cycle
	values []State
	period float64

	prev    int
	next    int
	tPrev   float64
	tNext   float64
	nextOff float64 // time offset of the next record
	wraps   int
}

func newSeries(name string, times []float64, values []State) (*series, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%s series has no records: %w", name, simerr.ErrConfig)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("%s series not increasing at record %d: %w", name, i+1, simerr.ErrConfig)
		}
	}
	s := &series{
		times:  times,
		values: values,
		period: times[len(times)-1] - times[0] + 1.0/12,
	}
	s.rewind()
	return s, nil
}

// rewind primes the cursor from the first two records.
func (s *series) rewind() {
	s.nextOff, s.wraps = 0, 0
	s.prev, s.next = 0, 0
	s.tPrev = s.times[0]
	s.advanceNext()
}

func (s *series) advanceNext() {
	s.next++
	if s.next == len(s.times) {
		s.next = 0
		s.nextOff += s.period
		s.wraps++
	}
	s.tNext = s.times[s.next] + s.nextOff
}

// advance moves the cursor forward until t < tNext.
func (s *series) advance(t float64) {
	for t >= s.tNext {
		s.prev, s.tPrev = s.next, s.tNext
		s.advanceNext()
	}
}

func (s *series) at(t float64, mode Interpolation) State {
	if mode == InterpHold || t <= s.tPrev {
		return s.values[s.prev]
	}
	w := (t - s.tPrev) / (s.tNext - s.tPrev)
	return s.values[s.prev].lerp(s.values[s.next], w)
}

// Provider serves interpolated forcing from a meteorology series and an
// independent CO2 series.
type Provider struct {
	opts Options
	met  *series
	co2  *series

	tNow  float64
	state State
}

// Open reads both forcing files. Each file has one header line followed by
// rows of year, month and values in a fixed column order.
func Open(metPath, co2Path string, opts Options) (*Provider, error) {
	if opts.ReferenceYear == 0 {
		opts.ReferenceYear = DefaultReferenceYear
	}

	var metRows []metRecord
	if err := readRows(metPath, &metRows); err != nil {
		return nil, err
	}
	var co2Rows []co2Record
	if err := readRows(co2Path, &co2Rows); err != nil {
		return nil, err
	}

	times := make([]float64, len(metRows))
	values := make([]State, len(metRows))
	for i, r := range metRows {
		t, err := recordTime(r.Year, r.Month, opts.ReferenceYear)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", metPath, i+2, err)
		}
		times[i] = t
		values[i] = State{Temp: r.Temp, PPFD: r.PPFD, VPD: r.VPD, SWP: r.SWP}
	}
	met, err := newSeries("meteorology", times, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", metPath, err)
	}

	times = make([]float64, len(co2Rows))
	values = make([]State, len(co2Rows))
	for i, r := range co2Rows {
		t, err := recordTime(r.Year, r.Month, opts.ReferenceYear)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", co2Path, i+2, err)
		}
		times[i] = t
		values[i] = State{CO2: r.CO2}
	}
	co2, err := newSeries("co2", times, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", co2Path, err)
	}

	p := &Provider{opts: opts, met: met, co2: co2}
	p.tNow = met.tPrev
	p.state = p.interpolate(p.tNow)
	return p, nil
}

func readRows(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening forcing file: %w: %w", simerr.ErrConfig, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("reading header of %s: %w: %w", path, simerr.ErrConfig, err)
	}
	if err := gocsv.UnmarshalWithoutHeaders(r, out); err != nil {
		return fmt.Errorf("parsing %s: %w: %w", path, simerr.ErrConfig, err)
	}
	return nil
}

func recordTime(year, month, refYear int) (float64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("month %d out of range: %w", month, simerr.ErrConfig)
	}
	return float64(year-refYear) + float64(month-1)/12, nil
}

func (p *Provider) interpolate(t float64) State {
	st := p.met.at(t, p.opts.Interpolation)
	st.CO2 = p.co2.at(t, p.opts.Interpolation).CO2
	return st
}

// StateAt returns the forcing at t. Queries must not go back in time;
// repeating the previous time returns the cached state.
func (p *Provider) StateAt(t float64) (State, error) {
	if t == p.tNow {
		return p.state, nil
	}
	if t < p.tNow {
		return State{}, fmt.Errorf("climate queried at %v after %v: %w", t, p.tNow, simerr.ErrPrecondition)
	}
	p.met.advance(t)
	p.co2.advance(t)
	p.tNow = t
	p.state = p.interpolate(t)
	return p.state, nil
}

// Now returns the time of the last query.
func (p *Provider) Now() float64 {
	return p.tNow
}

// Cursor returns the meteorology records bracketing the current time.
func (p *Provider) Cursor() (tPrev, tNext float64) {
	return p.met.tPrev, p.met.tNext
}

// Wraps returns how many times the meteorology series has restarted.
func (p *Provider) Wraps() int {
	return p.met.wraps
}

// Start returns the time of the first meteorology record.
func (p *Provider) Start() float64 {
	return p.met.times[0]
}
