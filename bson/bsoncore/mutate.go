// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Mutator is an owned, growable document with in-place insert/erase,
// matching spec.md §3's "mutable document" and §4.E's splice algorithm.
//
// Per spec.md's Design Notes §9, a child subdocument mutator does not
// hold a raw pointer into the shared buffer (that pointer would dangle
// the moment a sibling splice reallocates the backing array). Instead it
// holds an *offset* from a shared root buffer pointer, plus a link to
// its parent; every splice walks the parent chain and bumps each
// ancestor's own length header by the same delta; because a BSON nested
// document's length header is part of that document's own bytes (not a
// separate field the parent tracks), bumping the ancestor's header is
// all that "rebuilding the child's absolute pointer" requires -- the
// offset itself never needs to move, because a splice performed through
// a descendant mutator only ever touches bytes at or after that
// descendant's own offset, never before it.
type Mutator struct {
	root      *[]byte
	offset    int
	parent    *Mutator
	openChild *Mutator
}

// NewMutator constructs a Mutator over an owned copy of doc. If doc is
// nil, the mutator starts from the canonical empty document.
func NewMutator(doc []byte) (*Mutator, error) {
	if doc == nil {
		doc = EmptyDocument
	}
	if _, err := FromBytes(doc); err != nil {
		return nil, err
	}
	owned := append([]byte(nil), doc...)
	return &Mutator{root: &owned}, nil
}

// Bytes returns a copy of the mutator's current document bytes.
func (m *Mutator) Bytes() []byte {
	return append([]byte(nil), m.docBytes()...)
}

func (m *Mutator) docBytes() []byte {
	length := m.headerLen()
	return (*m.root)[m.offset : m.offset+length]
}

func (m *Mutator) headerLen() int {
	v := int32(binary.LittleEndian.Uint32((*m.root)[m.offset : m.offset+4]))
	return int(v)
}

func updateHeaderAt(root *[]byte, offset int, delta int) {
	cur := int32(binary.LittleEndian.Uint32((*root)[offset : offset+4]))
	binary.LittleEndian.PutUint32((*root)[offset:offset+4], uint32(cur+int32(delta)))
}

// propagate applies delta to this mutator's own header and every live
// ancestor's header, in root-shared-buffer terms (spec.md §4.E "updates
// outer length headers of all ancestor subdocuments that are currently
// open through the mutator").
func (m *Mutator) propagate(delta int) {
	for cur := m; cur != nil; cur = cur.parent {
		updateHeaderAt(cur.root, cur.offset, delta)
	}
}

// splice replaces the region [absOffset, absOffset+oldLen) of the shared
// root buffer with newBytes, then propagates the resulting size delta up
// through the ancestor chain.
func (m *Mutator) splice(absOffset, oldLen int, newBytes []byte) {
	delta := len(newBytes) - oldLen
	out := make([]byte, 0, len(*m.root)+delta)
	out = append(out, (*m.root)[:absOffset]...)
	out = append(out, newBytes...)
	out = append(out, (*m.root)[absOffset+oldLen:]...)
	*m.root = out
	m.propagate(delta)
}

// elements decodes m's current top-level elements, erroring if m
// currently holds an open child (which must be closed first -- spec.md
// §4.E's "exactly one live mutator per subdocument at a time").
func (m *Mutator) elements() ([]Element, error) {
	if m.openChild != nil {
		return nil, fmt.Errorf("bsoncore: mutator has an open child mutator; Close it first")
	}
	return Document(m.docBytes()).Elements()
}

// Insert splices a new element with the given key and value before the
// element currently at position `at` (0-based). at == the current
// element count appends at the end of the document, immediately before
// its terminator.
func (m *Mutator) Insert(at uint, key string, v Value) error {
	elements, err := m.elements()
	if err != nil {
		return err
	}
	if at > uint(len(elements)) {
		return fmt.Errorf("bsoncore: insert index %d out of range (have %d elements)", at, len(elements))
	}
	absOffset := m.offset + 4
	for i := uint(0); i < at; i++ {
		absOffset += len(elements[i])
	}
	elemBytes := AppendValueElement(nil, key, v)
	m.splice(absOffset, 0, elemBytes)
	return nil
}

// Erase removes the element at position `at` (0-based), the inverse of
// Insert.
func (m *Mutator) Erase(at uint) error {
	elements, err := m.elements()
	if err != nil {
		return err
	}
	if at >= uint(len(elements)) {
		return fmt.Errorf("bsoncore: erase index %d out of range (have %d elements)", at, len(elements))
	}
	absOffset := m.offset + 4
	for i := uint(0); i < at; i++ {
		absOffset += len(elements[i])
	}
	m.splice(absOffset, len(elements[at]), nil)
	return nil
}

// Child produces a mutator for the subdocument or array element at
// position `at`. The returned Mutator must be Close()d before m.Insert,
// m.Erase, or another call to m.Child is made, matching spec.md §4.E's
// one-live-mutator-per-subdocument invariant.
func (m *Mutator) Child(at uint) (*Mutator, error) {
	elements, err := m.elements()
	if err != nil {
		return nil, err
	}
	if at >= uint(len(elements)) {
		return nil, fmt.Errorf("bsoncore: child index %d out of range (have %d elements)", at, len(elements))
	}
	elem := elements[at]
	val, ok := elem.ValueOK()
	if !ok {
		return nil, fmt.Errorf("bsoncore: malformed element at index %d", at)
	}
	if val.Type != TypeEmbeddedDocument && val.Type != TypeArray {
		return nil, fmt.Errorf("bsoncore: element at index %d is not a document or array", at)
	}
	absOffset := m.offset + 4
	for i := uint(0); i < at; i++ {
		absOffset += len(elements[i])
	}
	keyLen, _ := cstringLen(elem[1:])
	childOffset := absOffset + 1 + keyLen + 1
	child := &Mutator{root: m.root, offset: childOffset, parent: m}
	m.openChild = child
	return child, nil
}

// Close releases a child mutator, allowing its parent to be mutated
// again. Closing a root mutator (one with no parent) is a no-op.
func (m *Mutator) Close() {
	if m.parent != nil {
		m.parent.openChild = nil
	}
}

// RelabelArrayFrom rewrites the decimal-string keys of every element
// from position `start` to the end of m's document so that the i-th
// element's key equals strconv.Itoa(i), matching spec.md §8 invariant 5.
// Only the affected suffix is rewritten, per spec.md §4.E.
func (m *Mutator) RelabelArrayFrom(start int) error {
	elements, err := m.elements()
	if err != nil {
		return err
	}
	if start < 0 || start > len(elements) {
		return fmt.Errorf("bsoncore: relabel start %d out of range (have %d elements)", start, len(elements))
	}
	absOffset := m.offset + 4
	for i := 0; i < start; i++ {
		absOffset += len(elements[i])
	}
	oldSuffixLen := 0
	for i := start; i < len(elements); i++ {
		oldSuffixLen += len(elements[i])
	}
	var newSuffix []byte
	for i := start; i < len(elements); i++ {
		v, ok := elements[i].ValueOK()
		if !ok {
			return fmt.Errorf("bsoncore: malformed element at index %d", i)
		}
		newSuffix = AppendValueElement(newSuffix, strconv.Itoa(i), v)
	}
	m.splice(absOffset, oldSuffixLen, newSuffix)
	return nil
}
