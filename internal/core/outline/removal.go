package outline

// RemovalBatch is the serializable form of one subtree removal: where the
// subtree was attached and its flattened records, depth-first with the subtree
// root first. The root's own record carries no parent so a later rebuild
// yields it as the single root.
type RemovalBatch struct {
	ParentID string   `json:"parent_id"`
	Position int      `json:"position"`
	Records  []Record `json:"records"`
}

// RemovalBatchOf captures node's subtree before it is removed from parent.
func RemovalBatchOf(node *Node) RemovalBatch {
	rec := node.Record()
	records := node.Records()
	records[0].ParentID = ""
	records[0].Position = 0
	return RemovalBatch{
		ParentID: rec.ParentID,
		Position: rec.Position,
		Records:  records,
	}
}

// Rebuild reconstructs the removed subtree. Returns nil for an empty batch.
func (b RemovalBatch) Rebuild() *Node {
	result := Build(b.Records)
	if len(result.Roots) != 1 {
		return nil
	}
	return result.Roots[0]
}
