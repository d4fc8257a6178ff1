package prices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"usagehub/internal/metrics"

	"go.uber.org/zap"
)

// Store 价格文档读穿缓存与单写者队列
// 内存副本在 Set 时立即更新；持久化写入按入队顺序逐个执行，同一时刻至多一个
// 写队列不设上限，入队从不阻塞；积压超过 backlogWarn 时记录告警
type Store struct {
	backend      Backend
	writeTimeout time.Duration
	backlogWarn  int
	logger       *zap.Logger

	mu     sync.Mutex
	cached Document
	loaded bool
	closed bool

	qmu     sync.Mutex
	queue   []Document
	drained bool
	wake    chan struct{}
	pending sync.WaitGroup
	done    chan struct{}
}

// NewStore 创建价格存储并启动写队列消费者
func NewStore(backend Backend, queueSize int, writeTimeout time.Duration, logger *zap.Logger) *Store {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:      backend,
		writeTimeout: writeTimeout,
		backlogWarn:  queueSize,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go s.processQueue()
	return s
}

// Get 返回文档副本；首次访问时从持久化存储加载，不存在则创建空文档
func (s *Store) Get(ctx context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.cached.Clone(), nil
}

// Set 将 updates 合并到当前缓存文档的副本，立即替换缓存并入队整文档写入
func (s *Store) Set(ctx context.Context, updates Document) (Document, error) {
	for name := range updates {
		if name == "" {
			return nil, ErrMissingModelName
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	merged := s.cached.Merge(updates)
	s.cached = merged
	// 持锁入队，保证写入顺序与缓存替换顺序一致；enqueue 不会阻塞
	s.enqueue(merged.Clone())
	return merged.Clone(), nil
}

// Flush 等待已入队的写入全部完成
func (s *Store) Flush() {
	s.pending.Wait()
}

// Close 停止接收写入，等待队列清空
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.qmu.Lock()
	s.drained = true
	s.qmu.Unlock()
	s.signal()
	<-s.done
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	loadCtx, cancel := s.ioContext(ctx)
	defer cancel()

	doc, err := s.backend.Load(loadCtx)
	switch {
	case err == nil:
		s.cached = doc
	case errors.Is(err, ErrDocumentNotFound):
		s.cached = Document{}
		if !s.closed {
			s.enqueue(Document{})
		}
	default:
		return fmt.Errorf("加载价格文档失败: %w", err)
	}
	s.loaded = true
	return nil
}

// enqueue 调用方持有 s.mu，入队顺序即缓存替换顺序；只追加不阻塞
func (s *Store) enqueue(doc Document) {
	s.pending.Add(1)
	metrics.PriceWriteQueueDepth.Inc()

	s.qmu.Lock()
	s.queue = append(s.queue, doc)
	backlog := len(s.queue)
	s.qmu.Unlock()

	if backlog == s.backlogWarn {
		s.logger.Warn("价格文档写队列积压", zap.Int("pending", backlog))
	}
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// processQueue 唯一的消费者，按 FIFO 逐个写入
func (s *Store) processQueue() {
	defer close(s.done)
	for {
		s.qmu.Lock()
		if len(s.queue) == 0 {
			drained := s.drained
			s.qmu.Unlock()
			if drained {
				return
			}
			<-s.wake
			continue
		}
		doc := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		s.write(doc)
	}
}

// Backlog 尚未持久化的写入数
func (s *Store) Backlog() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

func (s *Store) write(doc Document) {
	defer s.pending.Done()
	defer metrics.PriceWriteQueueDepth.Dec()

	ctx, cancel := s.ioContext(context.Background())
	defer cancel()

	if err := s.backend.Save(ctx, doc); err != nil {
		metrics.PriceWritesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("价格文档写入失败，内存副本仍然有效", zap.Int("models", len(doc)), zap.Error(err))
		return
	}
	metrics.PriceWritesTotal.WithLabelValues("success").Inc()
	s.logger.Debug("价格文档已持久化", zap.Int("models", len(doc)))
}

func (s *Store) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}
