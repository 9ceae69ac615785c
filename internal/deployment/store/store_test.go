package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadMissingDocumentIsEmpty(t *testing.T) {
	s := NewStore(memfs.New())

	doc, err := s.Read("bsc")
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestStore_WriteMergesIntoExistingDocument(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "bsc.json", []byte(`{"FarmFactory": "0xA"}`), 0644))
	s := NewStore(fs)

	require.NoError(t, s.Write("bsc", "FarmGenerator01", "0xB"))

	doc, err := s.Read("bsc")
	require.NoError(t, err)
	assert.Equal(t, Document{"FarmFactory": "0xA", "FarmGenerator01": "0xB"}, doc)
}

func TestStore_WriteOverwritesOnlyTheGivenKey(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.Write("bsc", "FarmFactory", "0xA"))
	require.NoError(t, s.Write("bsc", "FarmGenerator01", "0xB"))

	require.NoError(t, s.Write("bsc", "FarmFactory", "0xC"))

	doc, err := s.Read("bsc")
	require.NoError(t, err)
	assert.Equal(t, Document{"FarmFactory": "0xC", "FarmGenerator01": "0xB"}, doc)
}

func TestStore_NetworksAreIsolated(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.Write("bsc", "FarmFactory", "0xA"))
	require.NoError(t, s.Write("polygon", "FarmFactory", "0xP"))

	bsc, err := s.Read("bsc")
	require.NoError(t, err)
	polygon, err := s.Read("polygon")
	require.NoError(t, err)

	assert.Equal(t, Document{"FarmFactory": "0xA"}, bsc)
	assert.Equal(t, Document{"FarmFactory": "0xP"}, polygon)
}

func TestStore_DocumentIsPrettyPrinted(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs)
	require.NoError(t, s.Write("metis", "FarmFactory", "0xA"))

	content, err := util.ReadFile(fs, s.Path("metis"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"FarmFactory\": \"0xA\"\n}\n", string(content))
}

func TestStore_CorruptDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: `{"FarmFactory": `},
		{name: "array", content: `["0xA"]`},
		{name: "non-string value", content: `{"FarmFactory": 42}`},
		{name: "empty file", content: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			require.NoError(t, util.WriteFile(fs, "bsc.json", []byte(tt.content), 0644))
			s := NewStore(fs)

			_, err := s.Read("bsc")
			assert.ErrorIs(t, err, ErrCorruptDocument)

			err = s.Write("bsc", "FarmGenerator01", "0xB")
			assert.ErrorIs(t, err, ErrCorruptDocument)

			content, err := util.ReadFile(fs, "bsc.json")
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(content), "corrupt document must not be repaired")
		})
	}
}

func TestStore_NullDocumentIsEmpty(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "bsc.json", []byte(`null`), 0644))

	doc, err := NewStore(fs).Read("bsc")
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestStore_RequiresNames(t *testing.T) {
	s := NewStore(memfs.New())

	_, err := s.Read("")
	assert.Error(t, err)
	assert.Error(t, s.Write("", "FarmFactory", "0xA"))
	assert.Error(t, s.Write("bsc", "", "0xA"))
}

func TestStore_PendingJournal(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs)

	pending, err := s.Pending("bsc")
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.SetPending("bsc", "DeployFarmFactory", "0x01"))
	require.NoError(t, s.SetPending("bsc", "RegisterFarmGenerator", "0x02"))

	pending, err = s.Pending("bsc")
	require.NoError(t, err)
	assert.Equal(t, Pending{"DeployFarmFactory": "0x01", "RegisterFarmGenerator": "0x02"}, pending)

	doc, err := s.Read("bsc")
	require.NoError(t, err)
	assert.Empty(t, doc, "journal must not leak into the deployment document")

	require.NoError(t, s.ClearPending("bsc", "DeployFarmFactory"))
	pending, err = s.Pending("bsc")
	require.NoError(t, err)
	assert.Equal(t, Pending{"RegisterFarmGenerator": "0x02"}, pending)

	require.NoError(t, s.ClearPending("bsc", "RegisterFarmGenerator"))
	_, err = fs.Stat("bsc.pending.json")
	assert.ErrorIs(t, err, os.ErrNotExist, "empty journal is removed")
}

func TestStore_DiscardPending(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.SetPending("bsc", "a", "0x01"))
	require.NoError(t, s.SetPending("bsc", "b", "0x02"))

	require.NoError(t, s.DiscardPending("bsc"))

	pending, err := s.Pending("bsc")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFileStore_ConcurrentWritersKeepEveryKey(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Write("bsc", fmt.Sprintf("Contract%02d", i), fmt.Sprintf("0x%02d", i)))
		}()
	}
	wg.Wait()

	doc, err := s.Read("bsc")
	require.NoError(t, err)
	assert.Len(t, doc, writers)

	_, err = os.Stat(filepath.Join(dir, "bsc.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bsc.lock"))
	assert.NoError(t, err)
}

func TestMutexLocker_SerialisesPerNetwork(t *testing.T) {
	locker := NewMutexLocker()

	unlock, err := locker.Lock("bsc")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := locker.Lock("bsc")
		assert.NoError(t, err)
		close(acquired)
		_ = release()
	}()

	otherUnlock, err := locker.Lock("polygon")
	require.NoError(t, err)
	require.NoError(t, otherUnlock())

	select {
	case <-acquired:
		t.Fatal("second lock on the same network acquired while held")
	default:
	}

	require.NoError(t, unlock())
	<-acquired
}
