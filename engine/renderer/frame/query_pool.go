package frame

import (
	"sync"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/device"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// QueryKind selects what a query pool measures.
type QueryKind int

const (
	// QueryTimestamp pools hold one GPU timestamp per query.
	QueryTimestamp QueryKind = iota

	// QueryPipelineStatistics pools hold StatisticsCount counters per query.
	QueryPipelineStatistics
)

// StatisticsCount is the number of counters each pipeline-statistics query reports.
const StatisticsCount = 7

// StatisticNames labels the counters of a pipeline-statistics query in result order.
var StatisticNames = [StatisticsCount]string{
	"IA vertices",
	"IA primitives",
	"VS invocations",
	"clip invocations",
	"clip primitives",
	"FS invocations",
	"CS invocations",
}

const pipelineStatistics = vk.QueryPipelineStatisticInputAssemblyVerticesBit |
	vk.QueryPipelineStatisticInputAssemblyPrimitivesBit |
	vk.QueryPipelineStatisticVertexShaderInvocationsBit |
	vk.QueryPipelineStatisticClippingInvocationsBit |
	vk.QueryPipelineStatisticClippingPrimitivesBit |
	vk.QueryPipelineStatisticFragmentShaderInvocationsBit |
	vk.QueryPipelineStatisticComputeShaderInvocationsBit

// QueryState is where a pool is in its reset, write, read-back cycle.
type QueryState int

const (
	// QueryReset means a reset has been recorded and queries may be written.
	QueryReset QueryState = iota

	// QueryIssued means queries were written and submitted but results have not been read.
	QueryIssued

	// QueryAvailable means the last results were read and the pool may be reset.
	QueryAvailable
)

// queryBackend issues the pool's GPU commands.
type queryBackend interface {
	reset(cb vk.CommandBuffer, count uint32)
	writeTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, index uint32)
	begin(cb vk.CommandBuffer, index uint32)
	end(cb vk.CommandBuffer, index uint32)
	// results reads count queries without waiting. It reports false when any is not yet available.
	results(count uint32, out []uint64) (bool, error)
	destroy()
}

// QueryPool is a timestamp or pipeline-statistics query pool with a non-blocking read-back cycle. Results that
// are not ready are skipped and the previous values are kept.
type QueryPool struct {
	mu *sync.Mutex

	backend  queryBackend
	kind     QueryKind
	capacity uint32

	state   QueryState
	written uint32
	issued  uint32
	open    bool
	results []uint64
}

// NewQueryPool creates a query pool on dev.
//
// Parameters:
//   - dev: the device context
//   - kind: timestamp or pipeline statistics
//   - capacity: the number of queries the pool holds
//
// Returns:
//   - *QueryPool: the pool, ready to be reset
//   - error: when the driver rejects the pool
func NewQueryPool(dev device.Device, kind QueryKind, capacity uint32) (*QueryPool, error) {
	b, err := newVkQueryBackend(dev, kind, capacity)
	if err != nil {
		return nil, err
	}
	return newQueryPool(b, kind, capacity), nil
}

func newQueryPool(b queryBackend, kind QueryKind, capacity uint32) *QueryPool {
	if capacity == 0 {
		panic(errors.AssertionFailedf("query pool capacity must be greater than zero"))
	}
	return &QueryPool{
		mu:       &sync.Mutex{},
		backend:  b,
		kind:     kind,
		capacity: capacity,
		state:    QueryAvailable,
	}
}

// Kind returns what the pool measures.
func (q *QueryPool) Kind() QueryKind {
	return q.kind
}

// Capacity returns the number of queries the pool holds.
func (q *QueryPool) Capacity() uint32 {
	return q.capacity
}

// State returns the pool's position in its cycle.
func (q *QueryPool) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Issued returns the number of queries in the last issued batch.
func (q *QueryPool) Issued() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.issued
}

// Reset records a reset of the whole pool. An issued pool whose results have not been read stays issued and
// the frame writes no queries into it.
//
// Parameters:
//   - cb: the command buffer being recorded
func (q *QueryPool) Reset(cb vk.CommandBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueryIssued {
		return
	}
	q.backend.reset(cb, q.capacity)
	q.state = QueryReset
	q.written = 0
	q.open = false
}

func (q *QueryPool) next() uint32 {
	if q.written >= q.capacity {
		panic(errors.AssertionFailedf("query pool over-allocated: capacity %d", q.capacity))
	}
	i := q.written
	q.written++
	return i
}

// WriteTimestamp records a timestamp after stage completes.
//
// Parameters:
//   - cb: the command buffer being recorded
//   - stage: the pipeline stage the timestamp waits for
//
// Returns:
//   - uint32: the query index written
//   - bool: false when the pool is not reset and nothing was written
func (q *QueryPool) WriteTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits) (uint32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.kind != QueryTimestamp {
		panic(errors.AssertionFailedf("timestamp written to a statistics pool"))
	}
	if q.state != QueryReset {
		return 0, false
	}
	i := q.next()
	q.backend.writeTimestamp(cb, stage, i)
	return i, true
}

// Begin opens a pipeline-statistics query. It does nothing unless the pool is reset.
//
// Parameters:
//   - cb: the command buffer being recorded
func (q *QueryPool) Begin(cb vk.CommandBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.kind != QueryPipelineStatistics {
		panic(errors.AssertionFailedf("statistics query begun on a timestamp pool"))
	}
	if q.state != QueryReset {
		return
	}
	if q.open {
		panic(errors.AssertionFailedf("statistics query begun twice"))
	}
	q.backend.begin(cb, q.next())
	q.open = true
}

// End closes the query opened by Begin.
//
// Parameters:
//   - cb: the command buffer being recorded
func (q *QueryPool) End(cb vk.CommandBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QueryReset || !q.open {
		return
	}
	q.backend.end(cb, q.written-1)
	q.open = false
}

// Issue marks the queries written since Reset as submitted.
func (q *QueryPool) Issue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QueryReset {
		return
	}
	if q.open {
		panic(errors.AssertionFailedf("query pool issued with an open statistics query"))
	}
	q.state = QueryIssued
	q.issued = q.written
}

// Fetch reads results without blocking. A reset pool reads the queries written so far, an issued pool the
// queries counted at Issue. When they are not ready nothing changes.
//
// Returns:
//   - bool: true when new results were stored
//   - error: when the device reports a failure other than not-ready
func (q *QueryPool) Fetch() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var count uint32
	switch q.state {
	case QueryIssued:
		count = q.issued
	case QueryReset:
		if q.open {
			return false, nil
		}
		count = q.written
	default:
		return false, nil
	}
	out := make([]uint64, count*q.valuesPerQuery())
	if count > 0 {
		ready, err := q.backend.results(count, out)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}
	}
	q.results = out
	q.state = QueryAvailable
	return true, nil
}

// Results returns the last fetched values: one per timestamp, or StatisticsCount per statistics query.
func (q *QueryPool) Results() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results
}

func (q *QueryPool) valuesPerQuery() uint32 {
	if q.kind == QueryPipelineStatistics {
		return StatisticsCount
	}
	return 1
}

// Destroy releases the native pool.
func (q *QueryPool) Destroy() {
	q.backend.destroy()
}

// vkQueryBackend issues query commands on a native pool.
type vkQueryBackend struct {
	dev    vk.Device
	pool   vk.QueryPool
	values uint32
}

func newVkQueryBackend(dev device.Device, kind QueryKind, capacity uint32) (*vkQueryBackend, error) {
	info := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: capacity,
	}
	values := uint32(1)
	if kind == QueryPipelineStatistics {
		info.QueryType = vk.QueryTypePipelineStatistics
		info.PipelineStatistics = vk.QueryPipelineStatisticFlags(pipelineStatistics)
		values = StatisticsCount
	}
	var pool vk.QueryPool
	if err := vk.Error(vk.CreateQueryPool(dev.Handle(), &info, nil, &pool)); err != nil {
		return nil, errors.Wrap(err, "create query pool")
	}
	return &vkQueryBackend{dev: dev.Handle(), pool: pool, values: values}, nil
}

func (b *vkQueryBackend) reset(cb vk.CommandBuffer, count uint32) {
	vk.CmdResetQueryPool(cb, b.pool, 0, count)
}

func (b *vkQueryBackend) writeTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, index uint32) {
	vk.CmdWriteTimestamp(cb, stage, b.pool, index)
}

func (b *vkQueryBackend) begin(cb vk.CommandBuffer, index uint32) {
	vk.CmdBeginQuery(cb, b.pool, index, 0)
}

func (b *vkQueryBackend) end(cb vk.CommandBuffer, index uint32) {
	vk.CmdEndQuery(cb, b.pool, index)
}

func (b *vkQueryBackend) results(count uint32, out []uint64) (bool, error) {
	stride := uint64(b.values) * 8
	res := vk.GetQueryPoolResults(b.dev, b.pool, 0, count, uint64(len(out)*8), unsafe.Pointer(&out[0]),
		vk.DeviceSize(stride), vk.QueryResultFlags(vk.QueryResult64Bit))
	if res == vk.NotReady {
		return false, nil
	}
	if err := vk.Error(res); err != nil {
		return false, errors.Wrap(err, "get query pool results")
	}
	return true, nil
}

func (b *vkQueryBackend) destroy() {
	if b.pool != nil {
		vk.DestroyQueryPool(b.dev, b.pool, nil)
		b.pool = nil
	}
}
