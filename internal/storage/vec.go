package storage

import (
	"fmt"
	"log"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// initVecTableFromNotes reads the embedding dimension from any existing
// embedding row and creates/backfills note_vec. No-op if no embeddings
// exist yet; the table is created lazily on the first SaveEmbedding call
// in that case.
func (d *DB) initVecTableFromNotes() error {
	var dim int
	err := d.db.QueryRow(`SELECT LENGTH(vector)/4 FROM embeddings WHERE source_type = 'note' LIMIT 1`).Scan(&dim)
	if err != nil || dim == 0 {
		return nil
	}
	return d.ensureVecTable(dim)
}

// ensureVecTable creates the note_vec virtual table for the given
// embedding dimension (if not yet created) and backfills existing note
// embeddings. Idempotent for a stable dimension across process restarts.
//
// Uses an integer rowid (mirroring embeddings.rowid) plus an auxiliary
// +note_id TEXT column, avoiding vec0's TEXT PRIMARY KEY partitioning
// behavior, which breaks KNN queries if the virtual table's primary key
// is declared as text instead of the implicit integer rowid.
func (d *DB) ensureVecTable(dim int) error {
	if d.vecDim == dim {
		return nil
	}
	if d.vecDim != 0 && d.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match note_vec dim %d", dim, d.vecDim)
	}

	_, err := d.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_vec USING vec0(
			embedding float[%d],
			+note_id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("create note_vec(float[%d]): %w", dim, err)
	}
	d.vecDim = dim

	rows, err := d.db.Query(`SELECT rowid, source_id, vector FROM embeddings WHERE source_type = 'note'`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	tx, err := d.db.Begin()
	if err != nil {
		return nil
	}
	count := 0
	for rows.Next() {
		var rowid int64
		var noteID string
		var vec []byte
		if err := rows.Scan(&rowid, &noteID, &vec); err != nil {
			continue
		}
		floats := bytesToFloat32(vec)
		if len(floats) != dim {
			continue
		}
		serialized, serErr := sqlite_vec.SerializeFloat32(normalizeFloat32(floats))
		if serErr != nil {
			continue
		}
		tx.Exec(`DELETE FROM note_vec WHERE rowid = ?`, rowid)
		if _, err := tx.Exec(`INSERT INTO note_vec(rowid, embedding, note_id) VALUES (?, ?, ?)`, rowid, serialized, noteID); err != nil {
			continue
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return nil
	}
	if count > 0 {
		log.Printf("[storage] note_vec backfill: indexed %d notes (dim=%d)", count, dim)
	}
	return nil
}

// RepairVecIndex rebuilds the note_vec ANN index from the embeddings
// table, the same backfill ensureVecTable runs on open. Safe to call
// any time the index is suspected stale or missing; it is a no-op if no
// note embeddings exist yet.
func (d *DB) RepairVecIndex() error {
	return d.initVecTableFromNotes()
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func float32ToBytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		out[4*i] = byte(bits)
		out[4*i+1] = byte(bits >> 8)
		out[4*i+2] = byte(bits >> 16)
		out[4*i+3] = byte(bits >> 24)
	}
	return out
}

func bytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of v. Normalizing before
// storing in vec0 makes L2 distance equivalent to cosine distance:
//
//	cosine_dist = L2_dist^2 / 2   (for unit vectors)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	n := math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func cosineDistToL2(cosineDist float64) float64 {
	return math.Sqrt(2 * cosineDist)
}

func l2ToCosineSim(l2Dist float64) float64 {
	cosineDist := (l2Dist * l2Dist) / 2
	return 1 - cosineDist
}

// SaveEmbedding stores (or replaces) the embedding for a note and keeps
// note_vec in sync, creating the ANN index lazily on the first write if
// sqlite-vec is available.
func (d *DB) SaveEmbedding(noteID string, vector []float64, modelName string) error {
	id := "emb_" + noteID
	blob := float32ToBytes(float64ToFloat32(vector))

	res, err := d.db.Exec(`
		INSERT INTO embeddings (id, source_type, source_id, vector, model_name)
		VALUES (?, 'note', ?, ?, ?)
		ON CONFLICT(source_type, source_id) DO UPDATE SET vector = excluded.vector, model_name = excluded.model_name
	`, id, noteID, blob, modelName)
	if err != nil {
		return err
	}

	if !d.vecAvailable {
		return nil
	}
	if err := d.ensureVecTable(len(vector)); err != nil {
		log.Printf("[storage] note_vec unavailable for %s: %v", noteID, err)
		return nil
	}
	rowid, err := res.LastInsertId()
	if err != nil || rowid == 0 {
		// ON CONFLICT UPDATE path: look the rowid up explicitly.
		if scanErr := d.db.QueryRow(`SELECT rowid FROM embeddings WHERE source_type='note' AND source_id=?`, noteID).Scan(&rowid); scanErr != nil {
			return nil
		}
	}
	serialized, err := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(vector)))
	if err != nil {
		return nil
	}
	d.db.Exec(`DELETE FROM note_vec WHERE rowid = ?`, rowid)
	if _, err := d.db.Exec(`INSERT INTO note_vec(rowid, embedding, note_id) VALUES (?, ?, ?)`, rowid, serialized, noteID); err != nil {
		log.Printf("[storage] note_vec insert failed for %s: %v", noteID, err)
	}
	return nil
}

// KNN returns up to k note ids nearest to query by cosine similarity,
// using the vec0 ANN index when available and falling back to a full
// in-memory scan of embeddings otherwise.
func (d *DB) KNN(query []float64, k int) ([]ScoredNote, error) {
	if d.vecAvailable && d.vecDim == len(query) {
		return d.knnVec(query, k)
	}
	return d.knnScan(query, k)
}

// ScoredNote pairs a note id with a cosine-similarity score.
type ScoredNote struct {
	NoteID string
	Score  float64
}

func (d *DB) knnVec(query []float64, k int) ([]ScoredNote, error) {
	serialized, err := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(query)))
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(`
		SELECT note_id, distance FROM note_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serialized, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredNote
	for rows.Next() {
		var noteID string
		var l2dist float64
		if err := rows.Scan(&noteID, &l2dist); err != nil {
			continue
		}
		out = append(out, ScoredNote{NoteID: noteID, Score: l2ToCosineSim(l2dist)})
	}
	return out, rows.Err()
}

func (d *DB) knnScan(query []float64, k int) ([]ScoredNote, error) {
	rows, err := d.db.Query(`SELECT source_id, vector FROM embeddings WHERE source_type = 'note'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []ScoredNote
	for rows.Next() {
		var noteID string
		var vec []byte
		if err := rows.Scan(&noteID, &vec); err != nil {
			continue
		}
		floats := bytesToFloat32(vec)
		sim := cosineSimilarity64(query, float32To64(floats))
		scored = append(scored, ScoredNote{NoteID: noteID, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortScoredDesc(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func float32To64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func cosineSimilarity64(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortScoredDesc(s []ScoredNote) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
