package fs

import "rvos/block"

// blockIDAt resolves the physical data block backing logical block index
// inner of a file, walking the indirect tiers as needed.
func (fs *EasyFileSystem) blockIDAt(di *diskInode, inner int) (uint32, error) {
	if inner < directCount {
		return di.direct(inner), nil
	}
	inner -= directCount
	if inner < ptrsPerIndirect {
		var buf [block.BlockSize]byte
		if err := fs.cache.Read(uint64(di.indirect1()), buf[:]); err != nil {
			return 0, err
		}
		return le32(buf[inner*4:]), nil
	}
	inner -= ptrsPerIndirect
	idx1, idx2 := inner/ptrsPerIndirect, inner%ptrsPerIndirect
	var buf [block.BlockSize]byte
	if err := fs.cache.Read(uint64(di.indirect2()), buf[:]); err != nil {
		return 0, err
	}
	ind1 := le32(buf[idx1*4:])
	if err := fs.cache.Read(uint64(ind1), buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[idx2*4:]), nil
}

// setBlockIDAt installs blockID as logical block inner's physical
// backing, allocating and zeroing indirect index blocks on first use.
func (fs *EasyFileSystem) setBlockIDAt(di *diskInode, inner int, blockID uint32) error {
	if inner < directCount {
		di.setDirect(inner, blockID)
		return nil
	}
	inner -= directCount
	if inner < ptrsPerIndirect {
		if di.indirect1() == 0 {
			id, err := fs.allocDataBlock()
			if err != nil {
				return err
			}
			di.setIndirect1(id)
		}
		return fs.cache.Modify(uint64(di.indirect1()), func(buf []byte) {
			putLe32(buf[inner*4:], blockID)
		})
	}
	inner -= ptrsPerIndirect
	idx1, idx2 := inner/ptrsPerIndirect, inner%ptrsPerIndirect
	if di.indirect2() == 0 {
		id, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		di.setIndirect2(id)
	}
	var buf [block.BlockSize]byte
	if err := fs.cache.Read(uint64(di.indirect2()), buf[:]); err != nil {
		return err
	}
	ind1 := le32(buf[idx1*4:])
	if ind1 == 0 {
		id, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		ind1 = id
		if err := fs.cache.Modify(uint64(di.indirect2()), func(buf []byte) {
			putLe32(buf[idx1*4:], ind1)
		}); err != nil {
			return err
		}
	}
	return fs.cache.Modify(uint64(ind1), func(buf []byte) {
		putLe32(buf[idx2*4:], blockID)
	})
}

// increaseSize grows di to newSize bytes, allocating whatever data and
// index blocks the new length requires.
func (fs *EasyFileSystem) increaseSize(di *diskInode, newSize uint32) error {
	cur := blocksNeeded(di.size())
	need := blocksNeeded(newSize)
	for b := cur; b < need; b++ {
		id, err := fs.allocDataBlock()
		if err != nil {
			return err
		}
		if err := fs.setBlockIDAt(di, int(b), id); err != nil {
			return err
		}
	}
	di.setSize(newSize)
	return nil
}

// clear releases every data and index block owned by di and resets its
// fields to an empty file, for unlink/truncate.
func (fs *EasyFileSystem) clear(di *diskInode) error {
	n := blocksNeeded(di.size())
	for b := uint32(0); b < n && b < directCount; b++ {
		if err := fs.deallocDataBlock(di.direct(int(b))); err != nil {
			return err
		}
		di.setDirect(int(b), 0)
	}
	if n > directCount && di.indirect1() != 0 {
		upto := n - directCount
		if upto > ptrsPerIndirect {
			upto = ptrsPerIndirect
		}
		var buf [block.BlockSize]byte
		if err := fs.cache.Read(uint64(di.indirect1()), buf[:]); err != nil {
			return err
		}
		for i := uint32(0); i < upto; i++ {
			if err := fs.deallocDataBlock(le32(buf[i*4:])); err != nil {
				return err
			}
		}
		if err := fs.deallocDataBlock(di.indirect1()); err != nil {
			return err
		}
		di.setIndirect1(0)
	}
	if n > directCount+ptrsPerIndirect && di.indirect2() != 0 {
		remaining := n - directCount - ptrsPerIndirect
		var ind2 [block.BlockSize]byte
		if err := fs.cache.Read(uint64(di.indirect2()), ind2[:]); err != nil {
			return err
		}
		ind1Count := (remaining + ptrsPerIndirect - 1) / ptrsPerIndirect
		for i := uint32(0); i < ind1Count; i++ {
			ind1ID := le32(ind2[i*4:])
			var buf [block.BlockSize]byte
			if err := fs.cache.Read(uint64(ind1ID), buf[:]); err != nil {
				return err
			}
			cnt := ptrsPerIndirect
			if i == ind1Count-1 && remaining%ptrsPerIndirect != 0 {
				cnt = int(remaining % ptrsPerIndirect)
			}
			for j := 0; j < cnt; j++ {
				if err := fs.deallocDataBlock(le32(buf[j*4:])); err != nil {
					return err
				}
			}
			if err := fs.deallocDataBlock(ind1ID); err != nil {
				return err
			}
		}
		if err := fs.deallocDataBlock(di.indirect2()); err != nil {
			return err
		}
		di.setIndirect2(0)
	}
	di.setSize(0)
	return nil
}
