package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/vishanth10/supabase-traversaal/internal/auth"
)

// storedBoard はBoardと最終アクセス時刻の組。
type storedBoard struct {
	board      *Board
	lastAccess time.Time
}

// Store はセッションIDごとのBoardを保持する。
type Store struct {
	mu     sync.Mutex
	boards map[string]*storedBoard
	now    func() time.Time
}

// NewStore はStoreを生成する。
func NewStore() *Store {
	return &Store{
		boards: make(map[string]*storedBoard),
		now:    time.Now,
	}
}

// Get は指定セッションのBoardを返す。存在しない場合は作成する。
func (s *Store) Get(sessionID string) *Board {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, ok := s.boards[sessionID]
	if !ok {
		sb = &storedBoard{board: NewBoard()}
		s.boards[sessionID] = sb
	}
	sb.lastAccess = s.now()
	return sb.board
}

// Drop は指定セッションのBoardを破棄する。
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, sessionID)
}

// Len は保持しているBoard数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boards)
}

// HandleEvent はSIGNED_OUTを受け取ったセッションのBoardを破棄する。
// auth.Events.AddListenerに登録して使う。
func (s *Store) HandleEvent(ev auth.Event) {
	if ev.Type == auth.EventSignedOut {
		s.Drop(ev.SessionID)
	}
}

// Evict は最終アクセスからttlを超えたBoardを破棄し、破棄した件数を返す。
// ttlにセッションの最大有効期間を渡せば、期限切れでSIGNED_OUTが発行されなかった
// セッションのBoardだけが対象になる。
func (s *Store) Evict(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, sb := range s.boards {
		if now.Sub(sb.lastAccess) > ttl {
			delete(s.boards, id)
			evicted++
		}
	}
	return evicted
}

// RunEviction はctxが終了するまでinterval間隔でEvictを実行する。
func (s *Store) RunEviction(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(ttl)
		}
	}
}
