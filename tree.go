package bes

// Combinatorics on the complete binary tree of users.
//
// The tree over N users has 2N-1 nodes in breadth-first layout: node 0
// is the root, the children of node k are 2k+1 and 2k+2, the parent of
// node k>0 is (k-1)/2.  User u sits at leaf u+N-1.  The tree is never
// materialized; everything is index arithmetic.

func userToLeaf(nbUsers, user uint32) uint32 {
	return user + nbUsers - 1
}

func leftChild(node uint32) uint32  { return 2*node + 1 }
func rightChild(node uint32) uint32 { return 2*node + 2 }

// Parent of the node; ok is false at the root.
func parentNode(node uint32) (uint32, bool) {
	if node == 0 {
		return 0, false
	}
	return (node - 1) / 2, true
}

// Left/right directions (0=left, 1=right) from ancestor i down to
// descendant j.  Empty when j equals i; ok is false when j is not in the
// subtree rooted at i.
func getPath(i, j uint32) (path []byte, ok bool) {
	for j > i {
		if j%2 == 0 { // right child
			path = append(path, 1)
		} else { // left child
			path = append(path, 0)
		}
		j = (j - 1) / 2
	}
	if j != i {
		return nil, false
	}
	for a, b := 0, len(path)-1; a < b; a, b = a+1, b-1 {
		path[a], path[b] = path[b], path[a]
	}
	return path, true
}

// Steiner tree of the revoked leaves: a bit vector over the 2N-1 nodes
// marking each revoked leaf and its ancestors up to the root.  Walks
// stop at the first node already marked, so the cost is O(|R|·log N).
func buildSteinerTree(nbUsers uint32, revoked []uint32) []bool {
	st := make([]bool, 2*nbUsers-1)
	for _, user := range revoked {
		node := userToLeaf(nbUsers, user)
		for !st[node] {
			st[node] = true
			parent, ok := parentNode(node)
			if !ok {
				break
			}
			node = parent
		}
	}
	return st
}

// An NNL subset S_{i,j}: the leaves below node i that are not below its
// proper descendant j.
type subset struct {
	i, j uint32
}

// Extracts the maximal degree-1 chains of the Steiner tree.  Depth
// first from the root on an explicit stack, right child pushed before
// left so that the left subtree is processed first; the chain order is
// part of the wire contract.
func buildSubsets(st []bool) []subset {
	if !st[0] {
		return nil
	}

	var subsets []subset
	stack := []uint32{0}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		start := node
		for {
			if 2*node+1 >= uint32(len(st)) { // leaf: chain ends
				if start != node {
					subsets = append(subsets, subset{start, node})
				}
				break
			}
			left, right := leftChild(node), rightChild(node)
			switch {
			case st[left] && st[right]: // degree 2: chain ends, fork
				stack = append(stack, right, left)
				if start != node {
					subsets = append(subsets, subset{start, node})
				}
			case st[left]:
				node = left
				continue
			case st[right]:
				node = right
				continue
			}
			break
		}
	}
	return subsets
}

// Reports whether user is covered by S_{i,j}, i.e. whether its leaf is
// below i but not below j.  Walks the leaf's ancestry: reaching j first
// means revoked, reaching i first means covered, passing above i means
// outside the subset.
func userInSubset(user, i, j, nbUsers uint32) bool {
	node := userToLeaf(nbUsers, user)
	for {
		if node == j {
			return false
		}
		if node == i {
			return true
		}
		if node < i {
			return false
		}
		parent, ok := parentNode(node)
		if !ok {
			return false
		}
		node = parent
	}
}
