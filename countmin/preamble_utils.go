/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package countmin

import "encoding/binary"

const (
	// Preamble field offsets
	serVerOffset     = 0
	familyIDOffset   = 1
	numHashesOffset  = 2
	numBucketsOffset = 4
	totalCountOffset = 8
	seedOffset       = 16
	hashSeedsOffset  = 24

	// Full preamble size; the hash seeds and counter matrix follow.
	preambleBytes = 24

	// Family and version identifiers
	familyID = 18
	serVer   = 1
)

// extractSerVer extracts the serialization version from the header.
func extractSerVer(bytes []byte) uint8 {
	return bytes[serVerOffset]
}

// extractFamilyID extracts the family ID from the header.
func extractFamilyID(bytes []byte) uint8 {
	return bytes[familyIDOffset]
}

// extractNumHashes extracts the number of hash rows from the header.
func extractNumHashes(bytes []byte) int16 {
	return int16(binary.LittleEndian.Uint16(bytes[numHashesOffset:]))
}

// extractNumBuckets extracts the number of counters per row from the header.
func extractNumBuckets(bytes []byte) int32 {
	return int32(binary.LittleEndian.Uint32(bytes[numBucketsOffset:]))
}

// extractTotalCount extracts the total update weight from the header.
func extractTotalCount(bytes []byte) uint64 {
	return binary.LittleEndian.Uint64(bytes[totalCountOffset:])
}

// extractSeed extracts the user seed from the header.
func extractSeed(bytes []byte) int64 {
	return int64(binary.LittleEndian.Uint64(bytes[seedOffset:]))
}

// insertSerVer inserts the serialization version into the header.
func insertSerVer(bytes []byte) {
	bytes[serVerOffset] = serVer
}

// insertFamilyID inserts the family ID into the header.
func insertFamilyID(bytes []byte) {
	bytes[familyIDOffset] = familyID
}

// insertNumHashes inserts the number of hash rows into the header.
func insertNumHashes(bytes []byte, numHashes int16) {
	binary.LittleEndian.PutUint16(bytes[numHashesOffset:], uint16(numHashes))
}

// insertNumBuckets inserts the number of counters per row into the header.
func insertNumBuckets(bytes []byte, numBuckets int32) {
	binary.LittleEndian.PutUint32(bytes[numBucketsOffset:], uint32(numBuckets))
}

// insertTotalCount inserts the total update weight into the header.
func insertTotalCount(bytes []byte, totalCount uint64) {
	binary.LittleEndian.PutUint64(bytes[totalCountOffset:], totalCount)
}

// insertSeed inserts the user seed into the header.
func insertSeed(bytes []byte, seed int64) {
	binary.LittleEndian.PutUint64(bytes[seedOffset:], uint64(seed))
}
