package service

import (
	"fmt"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
)

// 跨树兄弟槽位查找：同一参与的三棵槽位树（实例/提交/评分）在位置上同构，
// 任意节点都可以用“基础槽位到该节点的槽位号链”在另一棵树中定位。
// 该路径匹配集中在这里实现，调用方不得自行散落实现。

// slotPath returns the chain of slot numbers from the base slot down to the
// given node (root first). The index must contain every slot of the node's
// container.
func slotPath(index map[uint]model.SlotNode, node model.SlotNode) ([]int, error) {
	path := []int{node.GetSlotNumber()}
	curr := node
	for curr.GetParentID() != nil {
		parent, ok := index[*curr.GetParentID()]
		if !ok {
			return nil, fmt.Errorf("%w: slot %d has a parent outside its container", util.ErrSlotTreeMismatch, curr.GetID())
		}
		path = append([]int{parent.GetSlotNumber()}, path...)
		curr = parent
	}
	return path, nil
}

// resolveSlotPath descends a slot tree one level per path entry, matching on
// (parent, slot number). A miss means the trees are not isomorphic, which is
// a materializer bug, not a user error.
func resolveSlotPath(nodes []model.SlotNode, path []int) (model.SlotNode, error) {
	var parent model.SlotNode
	for depth, number := range path {
		var found model.SlotNode
		for _, n := range nodes {
			if n.GetSlotNumber() != number {
				continue
			}
			if parent == nil {
				if n.GetParentID() == nil {
					found = n
					break
				}
			} else if n.GetParentID() != nil && *n.GetParentID() == parent.GetID() {
				found = n
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: no slot with number %d at depth %d", util.ErrSlotTreeMismatch, number, depth)
		}
		parent = found
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: empty slot path", util.ErrSlotTreeMismatch)
	}
	return parent, nil
}

func instanceSlotNodes(slots []model.EventInstanceSlot) ([]model.SlotNode, map[uint]model.SlotNode) {
	nodes := make([]model.SlotNode, len(slots))
	index := make(map[uint]model.SlotNode, len(slots))
	for i := range slots {
		nodes[i] = &slots[i]
		index[slots[i].ID] = &slots[i]
	}
	return nodes, index
}

func submissionSlotNodes(slots []model.ParticipationSubmissionSlot) ([]model.SlotNode, map[uint]model.SlotNode) {
	nodes := make([]model.SlotNode, len(slots))
	index := make(map[uint]model.SlotNode, len(slots))
	for i := range slots {
		nodes[i] = &slots[i]
		index[slots[i].ID] = &slots[i]
	}
	return nodes, index
}

func assessmentSlotNodes(slots []model.ParticipationAssessmentSlot) ([]model.SlotNode, map[uint]model.SlotNode) {
	nodes := make([]model.SlotNode, len(slots))
	index := make(map[uint]model.SlotNode, len(slots))
	for i := range slots {
		nodes[i] = &slots[i]
		index[slots[i].ID] = &slots[i]
	}
	return nodes, index
}
